// Package app wires the registration-to-dispatch pipeline: the route table
// built at startup, the seven generated operations, and the dispatcher that
// resolves (method, path) pairs to exactly one operation at request time.
package app

import (
	"context"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/iklobato/lightapi/domain/model"
	"github.com/iklobato/lightapi/domain/rest"
	"github.com/iklobato/lightapi/ports"
)

// Kind distinguishes generated routes from custom-handler routes.
type Kind int

const (
	Generated Kind = iota
	Custom
)

// Capability interfaces a custom handler may implement. Each is optional; the
// registry inspects which are present to compute the allowed-method set.
type (
	// Getter handles GET for both path forms. req.Key distinguishes the
	// single-resource form from the collection form.
	Getter interface {
		Get(ctx context.Context, req rest.Request) (rest.Result, error)
	}
	// Poster handles POST on the collection form.
	Poster interface {
		Post(ctx context.Context, req rest.Request) (rest.Result, error)
	}
	// Putter handles PUT on the single-resource form.
	Putter interface {
		Put(ctx context.Context, req rest.Request) (rest.Result, error)
	}
	// Patcher handles PATCH on the single-resource form.
	Patcher interface {
		Patch(ctx context.Context, req rest.Request) (rest.Result, error)
	}
	// Deleter handles DELETE on the single-resource form.
	Deleter interface {
		Delete(ctx context.Context, req rest.Request) (rest.Result, error)
	}
	// Optioner overrides the synthesized OPTIONS response.
	Optioner interface {
		Options(ctx context.Context, req rest.Request) (rest.Result, error)
	}
	// Header overrides the synthesized HEAD response.
	Header interface {
		Head(ctx context.Context, req rest.Request) (rest.Result, error)
	}
)

// HandlerSpec registers a custom handler at a path. MethodNames, when
// non-empty, is an inclusive whitelist and takes precedence over Exclude;
// otherwise every method the handler implements is allowed minus Exclude.
type HandlerSpec struct {
	Impl        any
	MethodNames []string // whitelist, e.g. []string{"get", "post"}
	Exclude     []string // blacklist
	AuthExempt  bool
}

// RouteEntry binds one normalized path to its allowed methods and either a
// descriptor (Generated) or a handler object (Custom). Read-only after
// registration completes.
type RouteEntry struct {
	Path       string
	Kind       Kind
	Allowed    []string // canonical order, see methodOrder
	Descriptor *model.Descriptor
	Handler    any
	AuthExempt bool
}

// AllowHeader renders the allowed-method set for an Allow header.
func (e *RouteEntry) AllowHeader() string {
	return strings.Join(e.Allowed, ", ")
}

// Allows reports whether the verb is in the allowed-method set.
func (e *RouteEntry) Allows(method string) bool {
	for _, m := range e.Allowed {
		if m == method {
			return true
		}
	}
	return false
}

var methodOrder = []string{"POST", "GET", "PUT", "PATCH", "DELETE", "OPTIONS", "HEAD"}

// Service owns the route table and dispatches requests against it.
// Registration is append-only and must complete before the first Dispatch;
// after that the table is read-only and safe for unsynchronized concurrent
// reads.
type Service struct {
	routes  map[string]*RouteEntry
	storage ports.Storage
	auth    ports.Authenticator
	logger  zerolog.Logger
}

// Deps contains dependencies for the service.
type Deps struct {
	Storage ports.Storage
	Auth    ports.Authenticator // nil disables the auth gate
	Logger  zerolog.Logger
}

// NewService creates an empty service.
func NewService(deps Deps) *Service {
	return &Service{
		routes:  make(map[string]*RouteEntry),
		storage: deps.Storage,
		auth:    deps.Auth,
		logger:  deps.Logger,
	}
}

// Register binds a descriptor at path, deriving the path from the resource
// name when path is empty. All seven operations are bound and the backend is
// prepared for the resource.
func (s *Service) Register(ctx context.Context, path string, d *model.Descriptor) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if path == "" {
		path = d.PathSegment()
	}
	path = normalizePath(path)
	if _, dup := s.routes[path]; dup {
		return rest.Configf(path, "already registered")
	}
	if err := s.storage.Bind(ctx, d); err != nil {
		return err
	}
	allowed := make([]string, len(methodOrder))
	copy(allowed, methodOrder)
	s.routes[path] = &RouteEntry{
		Path:       path,
		Kind:       Generated,
		Allowed:    allowed,
		Descriptor: d,
	}
	s.logger.Info().Str("path", path).Str("resource", d.Name).Msg("registered resource")
	return nil
}

// RegisterHandler binds a custom handler at path. The effective method set is
// computed from the spec's whitelist/blacklist and the capabilities the
// handler actually implements; an empty result is a configuration error.
func (s *Service) RegisterHandler(path string, spec HandlerSpec) error {
	path = normalizePath(path)
	if path == "/" {
		return rest.Configf(path, "empty path")
	}
	if _, dup := s.routes[path]; dup {
		return rest.Configf(path, "already registered")
	}

	impl := implementedMethods(spec.Impl)
	var allowed []string
	if len(spec.MethodNames) > 0 {
		want := canonicalSet(spec.MethodNames)
		for _, m := range methodOrder {
			if want[m] && impl[m] {
				allowed = append(allowed, m)
			}
		}
		if len(allowed) == 0 {
			return rest.Configf(path, "handler implements none of the whitelisted methods")
		}
	} else {
		skip := canonicalSet(spec.Exclude)
		for _, m := range methodOrder {
			if impl[m] && !skip[m] {
				allowed = append(allowed, m)
			}
		}
		if len(allowed) == 0 {
			return rest.Configf(path, "handler implements no methods")
		}
	}

	s.routes[path] = &RouteEntry{
		Path:       path,
		Kind:       Custom,
		Allowed:    allowed,
		Handler:    spec.Impl,
		AuthExempt: spec.AuthExempt,
	}
	s.logger.Info().Str("path", path).Strs("methods", allowed).Msg("registered handler")
	return nil
}

// Routes returns the registered entries sorted by path (for listings).
func (s *Service) Routes() []*RouteEntry {
	out := make([]*RouteEntry, 0, len(s.routes))
	for _, e := range s.routes {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Lookup resolves a normalized path, exact match first, then the
// single-resource form by stripping the trailing segment and treating it as a
// primary-key parameter.
func (s *Service) Lookup(path string) (entry *RouteEntry, key string, ok bool) {
	path = normalizePath(path)
	if e, found := s.routes[path]; found {
		return e, "", true
	}
	i := strings.LastIndexByte(path, '/')
	if i <= 0 || i == len(path)-1 {
		return nil, "", false
	}
	if e, found := s.routes[path[:i]]; found {
		return e, path[i+1:], true
	}
	return nil, "", false
}

// implementedMethods derives the dispatchable method set from the handler's
// capability interfaces. OPTIONS is always synthesizable; HEAD is
// synthesizable whenever GET is handled.
func implementedMethods(h any) map[string]bool {
	m := map[string]bool{"OPTIONS": true}
	if _, ok := h.(Getter); ok {
		m["GET"] = true
		m["HEAD"] = true
	}
	if _, ok := h.(Poster); ok {
		m["POST"] = true
	}
	if _, ok := h.(Putter); ok {
		m["PUT"] = true
	}
	if _, ok := h.(Patcher); ok {
		m["PATCH"] = true
	}
	if _, ok := h.(Deleter); ok {
		m["DELETE"] = true
	}
	if _, ok := h.(Optioner); ok {
		m["OPTIONS"] = true
	}
	if _, ok := h.(Header); ok {
		m["HEAD"] = true
	}
	return m
}

func canonicalSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[strings.ToUpper(strings.TrimSpace(n))] = true
	}
	return set
}

// normalizePath ensures a leading slash and strips the trailing one, so
// /person and /person/ name the same route.
func normalizePath(p string) string {
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
	}
	return p
}

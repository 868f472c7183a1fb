package app

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/iklobato/lightapi/domain/rest"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error string `json:"error"`
}

// Dispatch resolves one request to exactly one bound operation, runs the auth
// gate, executes the operation, and translates typed failures to status
// codes. It is the only place HTTP error semantics are produced.
func (s *Service) Dispatch(ctx context.Context, req rest.Request) (res rest.Result) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("method", req.Method).
				Str("path", req.Path).
				Interface("panic", r).
				Msg("operation panicked")
			res = errorResult(500, "internal error")
		}
	}()

	entry, key, ok := s.Lookup(req.Path)
	if !ok {
		return errorResult(404, "not found")
	}
	req.Key = key

	if !entry.Allows(req.Method) {
		res = errorResult(405, "method not allowed")
		res.Headers.Set("Allow", entry.AllowHeader())
		return res
	}

	if s.auth != nil && !entry.AuthExempt {
		identity, err := s.auth.Authenticate(ctx, req)
		if err != nil {
			return errorResult(401, "unauthorized")
		}
		req.Identity = identity
	}

	res, err := s.execute(ctx, entry, req)
	if err != nil {
		res = s.translate(req, err)
		if res.Status == 405 {
			res.Headers.Set("Allow", entry.AllowHeader())
		}
	}
	if req.Method == "HEAD" {
		suppressBody(&res)
	}
	return res
}

// execute binds (method, path form) to one operation. For generated routes
// the tie-break is the presence of the trailing path segment: a GET to the
// collection form is always RetrieveAll, a GET to the single form is always
// Read; HEAD executes what GET would and the body is suppressed afterwards.
func (s *Service) execute(ctx context.Context, entry *RouteEntry, req rest.Request) (rest.Result, error) {
	if entry.Kind == Custom {
		return s.executeCustom(ctx, entry, req)
	}

	d := entry.Descriptor
	method := req.Method
	if method == "HEAD" {
		method = "GET"
	}
	switch method {
	case "GET":
		if req.IsCollection() {
			return opRetrieveAll(ctx, req, d, s.storage)
		}
		return opRead(ctx, req, d, s.storage)
	case "POST":
		if !req.IsCollection() {
			return rest.Result{}, rest.ErrMethodNotAllowed
		}
		return opCreate(ctx, req, d, s.storage)
	case "PUT":
		if req.IsCollection() {
			return rest.Result{}, rest.ErrMethodNotAllowed
		}
		return opUpdate(ctx, req, d, s.storage)
	case "PATCH":
		if req.IsCollection() {
			return rest.Result{}, rest.ErrMethodNotAllowed
		}
		return opPatch(ctx, req, d, s.storage)
	case "DELETE":
		if req.IsCollection() {
			return rest.Result{}, rest.ErrMethodNotAllowed
		}
		return opDelete(ctx, req, d, s.storage)
	case "OPTIONS":
		return opOptions(entry), nil
	}
	return rest.Result{}, rest.ErrMethodNotAllowed
}

func (s *Service) executeCustom(ctx context.Context, entry *RouteEntry, req rest.Request) (rest.Result, error) {
	h := entry.Handler
	method := req.Method
	if method == "HEAD" {
		if hh, ok := h.(Header); ok {
			return hh.Head(ctx, req)
		}
		method = "GET" // synthesized HEAD, body suppressed by the dispatcher
	}
	switch method {
	case "GET":
		if g, ok := h.(Getter); ok {
			return g.Get(ctx, req)
		}
	case "POST":
		if p, ok := h.(Poster); ok {
			return p.Post(ctx, req)
		}
	case "PUT":
		if p, ok := h.(Putter); ok {
			return p.Put(ctx, req)
		}
	case "PATCH":
		if p, ok := h.(Patcher); ok {
			return p.Patch(ctx, req)
		}
	case "DELETE":
		if d, ok := h.(Deleter); ok {
			return d.Delete(ctx, req)
		}
	case "OPTIONS":
		if o, ok := h.(Optioner); ok {
			return o.Options(ctx, req)
		}
		return opOptions(entry), nil
	}
	return rest.Result{}, rest.ErrMethodNotAllowed
}

// translate maps the error taxonomy to status codes: 404, 405, 400, 409, 401,
// and 500 for everything else. Internal detail never reaches the body.
func (s *Service) translate(req rest.Request, err error) rest.Result {
	var (
		verr *rest.ValidationError
		cerr *rest.ConstraintViolation
	)
	switch {
	case errors.Is(err, rest.ErrNotFound):
		return errorResult(404, "not found")
	case errors.Is(err, rest.ErrMethodNotAllowed):
		return errorResult(405, "method not allowed")
	case errors.Is(err, rest.ErrUnauthorized):
		return errorResult(401, "unauthorized")
	case errors.As(err, &verr):
		return errorResult(400, verr.Error())
	case errors.As(err, &cerr):
		return errorResult(409, cerr.Error())
	}
	s.logger.Error().
		Err(err).
		Str("method", req.Method).
		Str("path", req.Path).
		Msg("operation failed")
	return errorResult(500, "internal error")
}

// suppressBody drops the body while preserving the headers the bodied
// response would have carried, including its content length.
func suppressBody(res *rest.Result) {
	if res.Body == nil {
		return
	}
	if raw, err := json.Marshal(res.Body); err == nil {
		res.Headers.Set("Content-Type", "application/json")
		res.Headers.Set("Content-Length", strconv.Itoa(len(raw)+1)) // trailing newline
	}
	res.Body = nil
}

func errorResult(status int, msg string) rest.Result {
	return rest.Result{Status: status, Body: ErrorBody{Error: msg}}
}

// String renders the kind for logs and route listings.
func (k Kind) String() string {
	if k == Custom {
		return "custom"
	}
	return "generated"
}

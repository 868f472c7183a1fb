// Package rest provides request/response value types and the error taxonomy
// shared by the registry, the dispatcher, and storage adapters.
package rest

// Request represents one inbound API call (value type).
// This is extracted from the transport and passed to pure functions.
type Request struct {
	Method  string
	Path    string
	Headers map[string]string
	Body    []byte

	// Key holds the primary-key path parameter when the request targets the
	// single-resource form (/resource/{id}). Empty for collection requests.
	Key string

	// Identity is set by the auth gate after a successful check.
	Identity string

	// Metadata
	RemoteIP string
	TraceID  string
}

// IsCollection reports whether the request targets the collection form.
func (r Request) IsCollection() bool {
	return r.Key == ""
}

// Result represents the outcome of one operation (value type).
// Headers preserve insertion order.
type Result struct {
	Status  int
	Headers Headers
	Body    any
}

// Headers is an ordered set of response headers.
type Headers struct {
	keys   []string
	values map[string]string
}

// Set adds or replaces a header, preserving first-insertion order.
func (h *Headers) Set(key, value string) {
	if h.values == nil {
		h.values = make(map[string]string)
	}
	if _, ok := h.values[key]; !ok {
		h.keys = append(h.keys, key)
	}
	h.values[key] = value
}

// Get returns the value for key, or "".
func (h *Headers) Get(key string) string {
	return h.values[key]
}

// Keys returns header names in insertion order.
func (h *Headers) Keys() []string {
	return h.keys
}

// Len returns the number of headers.
func (h *Headers) Len() int {
	return len(h.keys)
}

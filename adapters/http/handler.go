// Package http adapts the dispatcher to net/http. It owns the translation
// between the wire and the rest value types; all routing decisions past the
// reserved endpoints (/healthz, /metrics) belong to the dispatcher.
package http

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/iklobato/lightapi/adapters/metrics"
	"github.com/iklobato/lightapi/app"
	"github.com/iklobato/lightapi/domain/rest"
)

const maxBodyBytes = 10 << 20 // 10MB

// APIHandler feeds every request through the dispatcher.
type APIHandler struct {
	service *app.Service
	logger  zerolog.Logger
	metrics *metrics.Collector
}

// NewAPIHandler creates the dispatcher-backed HTTP handler.
func NewAPIHandler(service *app.Service, logger zerolog.Logger, m *metrics.Collector) *APIHandler {
	return &APIHandler{service: service, logger: logger, metrics: m}
}

// ServeHTTP translates the HTTP request, dispatches it, and writes the result.
func (h *APIHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if h.metrics != nil {
		h.metrics.RequestsInFlight.Inc()
		defer h.metrics.RequestsInFlight.Dec()
	}

	var body []byte
	if r.Body != nil {
		var err error
		body, err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			h.logger.Error().Err(err).Msg("failed to read request body")
			writeJSON(w, http.StatusBadRequest, app.ErrorBody{Error: "failed to read request body"})
			return
		}
	}

	req := rest.Request{
		Method:   r.Method,
		Path:     r.URL.Path,
		Headers:  flattenHeaders(r.Header),
		Body:     body,
		RemoteIP: r.RemoteAddr,
		TraceID:  middleware.GetReqID(r.Context()),
	}

	res := h.service.Dispatch(r.Context(), req)

	for _, k := range res.Headers.Keys() {
		w.Header().Set(k, res.Headers.Get(k))
	}
	if res.Body != nil {
		writeJSON(w, res.Status, res.Body)
	} else {
		w.WriteHeader(res.Status)
	}

	if h.metrics != nil {
		h.metrics.Observe(r.URL.Path, r.Method, res.Status, time.Since(start))
	}
	h.logger.Debug().
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Int("status", res.Status).
		Dur("elapsed", time.Since(start)).
		Msg("request")
}

// Healthz answers liveness probes.
func Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// RouterConfig carries optional router features.
type RouterConfig struct {
	Metrics *metrics.Collector
	Timeout time.Duration
}

// NewRouter creates the main HTTP router: reserved endpoints first, then the
// dispatcher as catch-all.
func NewRouter(api *APIHandler, logger zerolog.Logger, cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	r.Use(middleware.Timeout(timeout))

	r.Get("/healthz", Healthz)
	if cfg.Metrics != nil {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Handle("/*", api)
	return r
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

// Package chi exposes the canonical search contract over HTTP. Handlers are
// thin: decode, delegate to the gateway, map canonical errors onto statuses.
package chi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/searchgate/searchgate/internal/batch"
	"github.com/searchgate/searchgate/internal/domain"
	"github.com/searchgate/searchgate/internal/gateway"
)

// Error codes returned to API clients.
const (
	codeBadRequest     = "bad_request"
	codeInvalidQuery   = "invalid_query"
	codeIndexNotFound  = "index_not_found"
	codeDocNotFound    = "document_not_found"
	codeUnsupported    = "unsupported_feature"
	codeRateLimited    = "rate_limited"
	codeUpstreamAuth   = "upstream_authentication"
	codeUpstreamFailed = "upstream_unavailable"
	codeTimeout        = "upstream_timeout"
	codeInternalError  = "internal_error"
)

// ErrorResponse is the canonical error payload.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Feature string `json:"feature,omitempty"`
}

// errorHandler tries to handle a canonical error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server handles the HTTP API over a gateway.
type Server struct {
	gw            *gateway.Gateway
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(gw *gateway.Gateway, logger *zap.Logger) *Server {
	s := &Server{gw: gw, logger: logger}
	s.errorHandlers = []errorHandler{
		unsupportedHandler,
		rateLimitedHandler,
		sentinelHandler(domain.ErrIndexNotFound, http.StatusNotFound, codeIndexNotFound),
		sentinelHandler(domain.ErrInvalidQuery, http.StatusBadRequest, codeInvalidQuery),
		sentinelHandler(domain.ErrAuthentication, http.StatusBadGateway, codeUpstreamAuth),
		sentinelHandler(domain.ErrTimeout, http.StatusGatewayTimeout, codeTimeout),
		sentinelHandler(domain.ErrConnection, http.StatusBadGateway, codeUpstreamFailed),
	}
	return s
}

// Routes returns the API route tree.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/healthz", s.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/providers", s.ListProviders)
		r.Get("/providers/{provider}/capabilities", s.GetCapabilities)
		r.Get("/providers/{provider}/health", s.ProviderHealth)

		r.Get("/indexes", s.ListIndexes)
		r.Post("/indexes", s.CreateIndex)
		r.Route("/indexes/{index}", func(r chi.Router) {
			r.Delete("/", s.DeleteIndex)
			r.Get("/schema", s.GetSchema)
			r.Put("/schema", s.UpdateSchema)

			r.Post("/search", s.Search)
			r.Post("/search/stream", s.StreamSearch)

			r.Put("/documents/{id}", s.UpsertDocument)
			r.Get("/documents/{id}", s.GetDocument)
			r.Delete("/documents/{id}", s.DeleteDocument)

			r.Post("/documents/batch", s.BatchUpsert)
			r.Delete("/documents/batch", s.BatchDelete)
		})
	})

	return r
}

// Health handles GET /healthz: every provider is probed, the service is
// healthy when at least one provider answers.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	healthy := 0
	for _, id := range s.gw.Providers() {
		if err := s.gw.HealthCheck(r.Context(), id); err != nil {
			checks[id] = "down"
			continue
		}
		checks[id] = "up"
		healthy++
	}

	status := "healthy"
	httpStatus := http.StatusOK
	switch {
	case healthy == 0:
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	case healthy < len(checks):
		status = "degraded"
	}

	writeJSON(w, httpStatus, map[string]any{
		"status": status,
		"checks": checks,
	})
}

// ListProviders handles GET /v1/providers.
func (s *Server) ListProviders(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"providers": s.gw.Providers()})
}

// GetCapabilities handles GET /v1/providers/{provider}/capabilities.
func (s *Server) GetCapabilities(w http.ResponseWriter, r *http.Request) {
	caps, err := s.gw.GetCapabilities(chi.URLParam(r, "provider"))
	if err != nil {
		writeError(w, http.StatusNotFound, codeBadRequest, "unknown provider")
		return
	}
	writeJSON(w, http.StatusOK, caps)
}

// ProviderHealth handles GET /v1/providers/{provider}/health.
func (s *Server) ProviderHealth(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "provider")
	if err := s.gw.HealthCheck(r.Context(), id); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "down"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "up"})
}

type createIndexRequest struct {
	Name   string         `json:"name"`
	Schema *domain.Schema `json:"schema,omitempty"`
}

// CreateIndex handles POST /v1/indexes.
func (s *Server) CreateIndex(w http.ResponseWriter, r *http.Request) {
	var req createIndexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Index name is required")
		return
	}

	if err := s.gw.CreateIndex(r.Context(), req.Name, req.Schema); err != nil {
		s.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"name": req.Name})
}

// ListIndexes handles GET /v1/indexes.
func (s *Server) ListIndexes(w http.ResponseWriter, r *http.Request) {
	names, err := s.gw.ListIndexes(r.Context())
	if err != nil {
		s.handleError(w, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"indexes": names})
}

// DeleteIndex handles DELETE /v1/indexes/{index}.
func (s *Server) DeleteIndex(w http.ResponseWriter, r *http.Request) {
	if err := s.gw.DeleteIndex(r.Context(), chi.URLParam(r, "index")); err != nil {
		s.handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetSchema handles GET /v1/indexes/{index}/schema.
func (s *Server) GetSchema(w http.ResponseWriter, r *http.Request) {
	schema, err := s.gw.GetSchema(r.Context(), chi.URLParam(r, "index"))
	if err != nil {
		s.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, schema)
}

// UpdateSchema handles PUT /v1/indexes/{index}/schema.
func (s *Server) UpdateSchema(w http.ResponseWriter, r *http.Request) {
	var schema domain.Schema
	if err := json.NewDecoder(r.Body).Decode(&schema); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := s.gw.UpdateSchema(r.Context(), chi.URLParam(r, "index"), schema); err != nil {
		s.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, schema)
}

// Search handles POST /v1/indexes/{index}/search.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	var q domain.Query
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	res, err := s.gw.Search(r.Context(), chi.URLParam(r, "index"), q)
	if err != nil {
		s.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// StreamSearch handles POST /v1/indexes/{index}/search/stream. Hits are
// written as NDJSON, flushed per hit.
func (s *Server) StreamSearch(w http.ResponseWriter, r *http.Request) {
	var q domain.Query
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	stream, err := s.gw.StreamSearch(r.Context(), chi.URLParam(r, "index"), q)
	if err != nil {
		s.handleError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)

	for {
		hit, err := stream.Next(r.Context())
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			// Headers are gone; signal the break in-band and stop.
			_ = enc.Encode(map[string]string{"error": err.Error()})
			s.logger.Warn("stream aborted", zap.Error(err))
			return
		}
		if err := enc.Encode(hit); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// UpsertDocument handles PUT /v1/indexes/{index}/documents/{id}.
func (s *Server) UpsertDocument(w http.ResponseWriter, r *http.Request) {
	content, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "read body: "+err.Error())
		return
	}

	doc := domain.Document{ID: chi.URLParam(r, "id"), Content: content}
	if err := s.gw.Upsert(r.Context(), chi.URLParam(r, "index"), doc); err != nil {
		s.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": doc.ID})
}

// GetDocument handles GET /v1/indexes/{index}/documents/{id}.
func (s *Server) GetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.gw.Get(r.Context(), chi.URLParam(r, "index"), chi.URLParam(r, "id"))
	if err != nil {
		s.handleError(w, err)
		return
	}
	if doc == nil {
		writeError(w, http.StatusNotFound, codeDocNotFound, "document not found")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// DeleteDocument handles DELETE /v1/indexes/{index}/documents/{id}.
// Deleting an absent document is a no-op.
func (s *Server) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := s.gw.Delete(r.Context(), chi.URLParam(r, "index"), chi.URLParam(r, "id")); err != nil {
		s.handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type batchUpsertRequest struct {
	Documents   []domain.Document `json:"documents"`
	OperationID string            `json:"operation_id,omitempty"`
}

type batchDeleteRequest struct {
	IDs         []string `json:"ids"`
	OperationID string   `json:"operation_id,omitempty"`
}

type batchFailure struct {
	Chunk   int    `json:"chunk"`
	Message string `json:"message"`
}

type batchResponse struct {
	OperationID string         `json:"operation_id"`
	Processed   int            `json:"processed"`
	Skipped     int            `json:"skipped,omitempty"`
	Resumed     bool           `json:"resumed,omitempty"`
	Failed      []batchFailure `json:"failed,omitempty"`
}

// BatchUpsert handles POST /v1/indexes/{index}/documents/batch.
func (s *Server) BatchUpsert(w http.ResponseWriter, r *http.Request) {
	var req batchUpsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if len(req.Documents) == 0 {
		writeError(w, http.StatusBadRequest, codeBadRequest, "documents must not be empty")
		return
	}

	report, err := s.gw.UpsertMany(r.Context(), chi.URLParam(r, "index"), req.Documents, req.OperationID)
	if err != nil {
		s.handleError(w, err)
		return
	}
	writeJSON(w, batchStatus(len(report.Failed)), batchResponseFrom(report))
}

// BatchDelete handles DELETE /v1/indexes/{index}/documents/batch.
func (s *Server) BatchDelete(w http.ResponseWriter, r *http.Request) {
	var req batchDeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, http.StatusBadRequest, codeBadRequest, "ids must not be empty")
		return
	}

	report, err := s.gw.DeleteMany(r.Context(), chi.URLParam(r, "index"), req.IDs, req.OperationID)
	if err != nil {
		s.handleError(w, err)
		return
	}
	writeJSON(w, batchStatus(len(report.Failed)), batchResponseFrom(report))
}

func batchResponseFrom(report batch.Report) batchResponse {
	resp := batchResponse{
		OperationID: report.OperationID,
		Processed:   report.Processed,
		Skipped:     report.Skipped,
		Resumed:     report.Resumed,
	}
	for _, f := range report.Failed {
		resp.Failed = append(resp.Failed, batchFailure{Chunk: f.Chunk, Message: f.Err.Error()})
	}
	return resp
}

func batchStatus(failed int) int {
	if failed > 0 {
		return http.StatusMultiStatus
	}
	return http.StatusOK
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}

// safeMessage returns a sentinel error message for the client without
// exposing internals.
func safeMessage(err error) string {
	sentinels := []error{
		domain.ErrIndexNotFound,
		domain.ErrInvalidQuery,
		domain.ErrUnsupported,
		domain.ErrRateLimited,
		domain.ErrAuthentication,
		domain.ErrTimeout,
		domain.ErrConnection,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// unsupportedHandler adds the failing feature to the payload.
func unsupportedHandler(w http.ResponseWriter, err error, msg string) bool {
	f, ok := domain.UnsupportedFeature(err)
	if !ok {
		return false
	}
	writeJSON(w, http.StatusNotImplemented, ErrorResponse{
		Code:    codeUnsupported,
		Message: msg,
		Feature: string(f),
	})
	return true
}

// rateLimitedHandler adds a Retry-After header when the backend provided one.
func rateLimitedHandler(w http.ResponseWriter, err error, msg string) bool {
	if !errors.Is(err, domain.ErrRateLimited) {
		return false
	}
	if after, ok := domain.RetryAfter(err); ok && after > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(after.Seconds())))
	}
	writeError(w, http.StatusTooManyRequests, codeRateLimited, msg)
	return true
}

func (s *Server) handleError(w http.ResponseWriter, err error) {
	msg := safeMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			s.logger.Warn("request failed", zap.Error(err))
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}

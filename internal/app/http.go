package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ritza-co/bryntum-backend-guides/internal/export"
	"github.com/ritza-co/bryntum-backend-guides/internal/reconcile"
	"github.com/ritza-co/bryntum-backend-guides/internal/search"
	"github.com/ritza-co/bryntum-backend-guides/internal/util"
)

// maxBodyBytes bounds sync and CRUD request bodies.
const maxBodyBytes = 10 << 20

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		s.handleReady(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/metrics" {
		handler := s.service.MetricsHandler()
		if handler == nil {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
			return
		}
		handler.ServeHTTP(w, r)
		return
	}

	backend := s.service.Backend()

	if !backend.CRUD && r.Method == http.MethodGet && r.URL.Path == "/api/load" {
		s.handleLoad(w, r)
		return
	}

	if !backend.CRUD && r.Method == http.MethodPost && r.URL.Path == "/api/sync" {
		s.handleSync(w, r)
		return
	}

	if backend.CRUD && r.Method == http.MethodGet && r.URL.Path == "/api/read" {
		rows, err := s.service.Read(r.Context())
		if err != nil {
			writeFailure(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": rows})
		return
	}

	if backend.CRUD && r.Method == http.MethodPost && r.URL.Path == "/api/create" {
		var body struct {
			Data []reconcile.Patch `json:"data"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeFailure(w, reconcile.ErrMalformed)
			return
		}
		rows, err := s.service.Create(r.Context(), body.Data)
		if err != nil {
			writeFailure(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": rows})
		return
	}

	if backend.CRUD && r.Method == http.MethodPatch && r.URL.Path == "/api/update" {
		var body struct {
			Data []reconcile.Patch `json:"data"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeFailure(w, reconcile.ErrMalformed)
			return
		}
		rows, err := s.service.Update(r.Context(), body.Data)
		if err != nil {
			writeFailure(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": rows})
		return
	}

	if backend.CRUD && r.Method == http.MethodDelete && r.URL.Path == "/api/delete" {
		var body struct {
			IDs []json.RawMessage `json:"ids"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeFailure(w, reconcile.ErrMalformed)
			return
		}
		if err := s.service.Delete(r.Context(), body.IDs); err != nil {
			writeFailure(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/search" {
		s.handleSearch(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/export" {
		s.handleExport(w, r)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
	}

	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}
	for name, err := range s.service.ReadyChecks(ctx) {
		if err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks[name] = map[string]any{"status": "error", "error": err.Error()}
			continue
		}
		checks[name] = map[string]any{"status": "ok"}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleLoad(w http.ResponseWriter, r *http.Request) {
	var requestID json.RawMessage
	if s.service.Backend().Revisioned {
		if header := strings.TrimSpace(r.Header.Get("X-Request-ID")); header != "" {
			requestID, _ = json.Marshal(header)
		}
	}
	snap, err := s.service.Load(r.Context(), requestID)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *HTTPServer) handleSync(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeFailure(w, reconcile.ErrMalformed)
		return
	}
	resp, err := s.service.Sync(r.Context(), body)
	if err != nil {
		if resp != nil {
			writeJSON(w, http.StatusInternalServerError, resp)
			return
		}
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := search.Query{
		Text:       r.URL.Query().Get("q"),
		Collection: strings.TrimSpace(r.URL.Query().Get("collection")),
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "limit must be an integer", nil)
			return
		}
		q.Limit = parsed
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("offset")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "offset must be an integer", nil)
			return
		}
		q.Offset = parsed
	}
	payload, err := s.service.Search(r.Context(), q)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Format string `json:"format"` // json, ndjson or html
		Upload bool   `json:"upload"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	format, err := export.ParseFormat(body.Format)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}

	result, err := s.service.Export(r.Context(), export.Request{Format: format, Upload: body.Upload})
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	if body.Upload {
		writeJSON(w, http.StatusCreated, map[string]any{"success": true, "export": result})
		return
	}

	// Return as downloadable file
	w.Header().Set("Content-Disposition", "attachment; filename=\""+result.Filename+"\"")
	w.Header().Set("Content-Type", result.MimeType)
	_, _ = w.Write(result.Data)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = util.NewID("req")
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

// requestIDFrom returns the X-Request-ID the middleware stored on ctx.
func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PATCH,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

// writeFailure answers a load, sync or CRUD call in the envelope the data
// stores read: success false plus a human readable message.
func writeFailure(w http.ResponseWriter, err error) {
	status, _, message, _ := mapError(err)
	writeJSON(w, status, map[string]any{"success": false, "message": message})
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) || errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	var inputErr *reconcile.InputError
	if errors.As(err, &inputErr) {
		return http.StatusBadRequest, "INVALID_INPUT", inputErr.Message, nil
	}
	if errors.Is(err, reconcile.ErrMalformed) {
		return http.StatusBadRequest, "INVALID_BODY", reconcile.InvalidBodyMessage, nil
	}
	var missingErr *reconcile.MissingRowError
	if errors.As(err, &missingErr) {
		return http.StatusInternalServerError, "MISSING_ROW", missingErr.Error(), nil
	}
	var crudErr *reconcile.CRUDError
	if errors.As(err, &crudErr) {
		return http.StatusInternalServerError, "CRUD_FAILED", crudErr.Message(), nil
	}
	var loadErr *reconcile.LoadError
	if errors.As(err, &loadErr) {
		return http.StatusInternalServerError, "LOAD_FAILED", loadErr.Message(), nil
	}
	if errors.Is(err, reconcile.ErrUnsupported) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, export.ErrUnsupportedFormat) {
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", "format must be 'json', 'ndjson' or 'html'", nil
	}
	if errors.Is(err, export.ErrStorageUnavailable) {
		return http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "Export storage is not configured", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}

// Package httphandler is the HTTP driving adapter: it routes the credential
// API, the shutdown endpoint and the static front end.
package httphandler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ericfisherdev/keyhold/internal/application"
	"github.com/ericfisherdev/keyhold/internal/domain/port/driven"
	"github.com/ericfisherdev/keyhold/internal/metrics"
)

const (
	maxBodyBytes      = 1 << 20
	defaultAuditLimit = 50
	maxAuditLimit     = 500
)

// Stopper terminates the server that is running this handler. RequestStop
// must return without waiting for the server to stop, because it is called
// from inside a request the server is still serving.
type Stopper interface {
	RequestStop()
}

// Handler is the HTTP driving adapter that serves the credential API and the
// static front end.
type Handler struct {
	svc     *application.CredentialService
	stopper Stopper
	static  http.Handler
	logger  *slog.Logger
}

// NewHandler creates a Handler. docRoot is served for every path the API
// does not claim.
func NewHandler(
	svc *application.CredentialService,
	stopper Stopper,
	docRoot fs.FS,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		svc:     svc,
		stopper: stopper,
		static:  http.FileServerFS(docRoot),
		logger:  logger,
	}
}

// RegisterRoutes registers every route on mux. More specific patterns win, so
// each method-less pattern only sees the verbs its path does not support.
func RegisterRoutes(mux *http.ServeMux, h *Handler) {
	for _, p := range []string{"/api/passwords", "/api/passwords/{$}"} {
		mux.HandleFunc("GET "+p, h.ListCredentials)
		mux.HandleFunc("POST "+p, h.CreateCredential)
		mux.HandleFunc(p, h.MethodNotAllowed)
	}

	mux.HandleFunc("PUT /api/passwords/{id}", h.UpdateCredential)
	mux.HandleFunc("DELETE /api/passwords/{id}", h.DeleteCredential)
	mux.HandleFunc("/api/passwords/{id}", h.MethodNotAllowed)

	for _, p := range []string{"/api/shutdown", "/api/shutdown/{$}"} {
		mux.HandleFunc("POST "+p, h.Shutdown)
		mux.HandleFunc(p, h.MethodNotAllowed)
	}

	if h.svc.AuditEnabled() {
		mux.HandleFunc("GET /api/audit", h.ListAudit)
	}

	mux.HandleFunc("/api/", h.APIFallback)
	mux.Handle("/", h.static)
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with the middleware chain.
func NewServeMux(h *Handler, logger *slog.Logger, m *metrics.Metrics) http.Handler {
	mux := http.NewServeMux()
	RegisterRoutes(mux, h)
	return ApplyMiddleware(mux, logger, m)
}

// ListCredentials returns every stored credential in insertion order.
func (h *Handler) ListCredentials(w http.ResponseWriter, r *http.Request) {
	creds, err := h.svc.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list credentials", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]CredentialResponse, 0, len(creds))
	for _, c := range creds {
		resp = append(resp, toCredentialResponse(c))
	}

	writeJSON(w, http.StatusOK, resp)
}

// CreateCredential stores a new credential from the request body.
func (h *Handler) CreateCredential(w http.ResponseWriter, r *http.Request) {
	var req CreateCredentialRequest
	if err := decodeObject(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Bad Request: "+err.Error())
		return
	}

	cred, err := h.svc.Create(r.Context(), req.fields())
	if err != nil {
		h.logger.Error("failed to create credential", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusCreated, toCredentialResponse(cred))
}

// UpdateCredential merges the fields present in the body into an existing
// credential.
func (h *Handler) UpdateCredential(w http.ResponseWriter, r *http.Request) {
	id, ok := h.credentialID(w, r)
	if !ok {
		return
	}

	var req UpdateCredentialRequest
	if err := decodeObject(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Bad Request: "+err.Error())
		return
	}

	cred, err := h.svc.Update(r.Context(), id, req.patch())
	if errors.Is(err, driven.ErrNotFound) {
		writeNotFound(w, id)
		return
	}
	if err != nil {
		h.logger.Error("failed to update credential", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, toCredentialResponse(cred))
}

// DeleteCredential removes a credential.
func (h *Handler) DeleteCredential(w http.ResponseWriter, r *http.Request) {
	id, ok := h.credentialID(w, r)
	if !ok {
		return
	}

	err := h.svc.Delete(r.Context(), id)
	if errors.Is(err, driven.ErrNotFound) {
		writeNotFound(w, id)
		return
	}
	if err != nil {
		h.logger.Error("failed to delete credential", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Shutdown acknowledges the request and then asks the server to stop. The
// stop runs elsewhere so this response is written before the server waits
// for its connections to drain.
func (h *Handler) Shutdown(w http.ResponseWriter, _ *http.Request) {
	h.logger.Info("shutdown requested")
	writeJSON(w, http.StatusOK, messageResponse{Message: "Server is shutting down..."})
	h.stopper.RequestStop()
}

// ListAudit returns the most recent journal entries, newest first.
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	limit := defaultAuditLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxAuditLimit)
	}

	entries, err := h.svc.RecentAudit(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list audit entries", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]AuditEntryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, toAuditEntryResponse(e))
	}

	writeJSON(w, http.StatusOK, resp)
}

// MethodNotAllowed answers a verb the matched API path does not support.
func (h *Handler) MethodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
}

// APIFallback handles /api/ paths no route claims: reads go to the file
// server like any other path, everything else is rejected.
func (h *Handler) APIFallback(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		h.static.ServeHTTP(w, r)
		return
	}
	h.MethodNotAllowed(w, r)
}

// credentialID parses the {id} path segment. A non-numeric id cannot name a
// stored credential, so it is answered as not found.
func (h *Handler) credentialID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Password with id %s not found.", raw))
		return 0, false
	}
	return id, true
}

func writeNotFound(w http.ResponseWriter, id int64) {
	writeError(w, http.StatusNotFound, fmt.Sprintf("Password with id %d not found.", id))
}

// decodeObject reads a bounded request body and unmarshals it into v. Only a
// JSON object is accepted.
func decodeObject(w http.ResponseWriter, r *http.Request, v any) error {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return fmt.Errorf("body exceeds %d bytes", maxErr.Limit)
		}
		return fmt.Errorf("read body: %w", err)
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return errors.New("empty body")
	}
	if data[0] != '{' {
		return errors.New("body must be a JSON object")
	}
	return json.Unmarshal(data, v)
}

package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ericfisherdev/keyhold/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// messageResponse is the body of informational responses such as shutdown.
type messageResponse struct {
	Message string `json:"message"`
}

// CredentialResponse is the JSON representation of a stored credential.
// The secret travels as "password" to match the persisted document.
type CredentialResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Password    string `json:"password"`
}

// CreateCredentialRequest is the JSON body for the create endpoint. Missing
// fields default to empty strings.
type CreateCredentialRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Password    string `json:"password"`
}

// UpdateCredentialRequest is the JSON body for the update endpoint. Only the
// fields present in the body are changed.
type UpdateCredentialRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Password    *string `json:"password"`
}

// AuditEntryResponse is the JSON representation of a journal entry.
type AuditEntryResponse struct {
	ID         int64  `json:"id"`
	Action     string `json:"action"`
	RecordID   int64  `json:"record_id"`
	Name       string `json:"name"`
	OccurredAt string `json:"occurred_at"`
}

// toCredentialResponse converts a domain Credential to its JSON representation.
func toCredentialResponse(c model.Credential) CredentialResponse {
	return CredentialResponse{
		ID:          c.ID,
		Name:        c.Name,
		Description: c.Description,
		Password:    c.Secret,
	}
}

func (req CreateCredentialRequest) fields() model.CredentialFields {
	return model.CredentialFields{
		Name:        req.Name,
		Description: req.Description,
		Secret:      req.Password,
	}
}

func (req UpdateCredentialRequest) patch() model.CredentialPatch {
	return model.CredentialPatch{
		Name:        req.Name,
		Description: req.Description,
		Secret:      req.Password,
	}
}

func toAuditEntryResponse(e model.AuditEntry) AuditEntryResponse {
	return AuditEntryResponse{
		ID:         e.ID,
		Action:     string(e.Action),
		RecordID:   e.RecordID,
		Name:       e.Name,
		OccurredAt: e.OccurredAt.UTC().Format(time.RFC3339),
	}
}

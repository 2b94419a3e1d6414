package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/garnizeh/taosdlc/internal/content"
	"github.com/garnizeh/taosdlc/internal/models"
	"github.com/gorilla/mux"
)

// SchemasHandler manages the per-phase content schemas. All endpoints are admin only.
type SchemasHandler struct {
	loader *content.Loader
}

func NewSchemasHandler(l *content.Loader) *SchemasHandler {
	return &SchemasHandler{loader: l}
}

func (h *SchemasHandler) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	actor, ok := requireActor(w, r)
	if !ok {
		return false
	}
	if !actor.IsAdmin() {
		writeErrorCode(w, http.StatusForbidden, "not_authorized", "schema management requires the admin role", nil)
		return false
	}
	return true
}

func phaseNumber(r *http.Request) (int, error) {
	n, err := strconv.Atoi(mux.Vars(r)["phaseNumber"])
	if err != nil {
		return 0, fmt.Errorf("invalid phase number")
	}
	return n, nil
}

func (h *SchemasHandler) ListSchemas(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	rows, err := h.loader.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if rows == nil {
		rows = []models.PhaseSchema{}
	}
	writeJSON(w, rows, http.StatusOK)
}

type schemaPayload struct {
	Description string          `json:"description,omitempty"`
	SchemaJSON  json.RawMessage `json:"schema_json"`
}

// PutSchema validates and stores the schema of a phase number.
func (h *SchemasHandler) PutSchema(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	n, err := phaseNumber(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	var p schemaPayload
	if err := decodeJSON(w, r, &p); err != nil {
		badRequest(w, "invalid json")
		return
	}
	if len(p.SchemaJSON) == 0 {
		badRequest(w, "schema_json required")
		return
	}

	s, err := h.loader.Put(r.Context(), n, p.Description, string(p.SchemaJSON))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, s, http.StatusOK)
}

func (h *SchemasHandler) DeleteSchema(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	n, err := phaseNumber(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	if err := h.loader.Delete(r.Context(), n); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SchemasHandler) ReloadSchemas(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	if err := h.loader.Reload(r.Context()); err != nil {
		writeError(w, r, fmt.Errorf("reload schemas: %w", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

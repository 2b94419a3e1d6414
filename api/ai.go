package api

import (
	"net/http"

	"github.com/garnizeh/taosdlc/internal/models"
	"github.com/garnizeh/taosdlc/internal/workflow"
)

type AIHandler struct {
	svc *workflow.Service
}

func NewAIHandler(svc *workflow.Service) *AIHandler {
	return &AIHandler{svc: svc}
}

func (h *AIHandler) ListByPhase(w http.ResponseWriter, r *http.Request) {
	phaseID, ok := pathID(r, "phaseId")
	if !ok {
		badRequest(w, "invalid phase id")
		return
	}
	items, err := h.svc.ListAIInteractions(r.Context(), phaseID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if items == nil {
		items = []models.AIInteraction{}
	}
	writeJSON(w, items, http.StatusOK)
}

type createInteractionRequest struct {
	ProjectID       int64  `json:"project_id"`
	PhaseID         *int64 `json:"phase_id,omitempty"`
	UserQuery       string `json:"user_query"`
	AIResponse      string `json:"ai_response"`
	ConfidenceScore int    `json:"confidence_score"`
}

// CreateInteraction appends a record produced by an external generator.
func (h *AIHandler) CreateInteraction(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req createInteractionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, "invalid request")
		return
	}

	in, err := h.svc.RecordAIInteraction(r.Context(), actor, models.AIInteraction{
		ProjectID:       req.ProjectID,
		PhaseID:         req.PhaseID,
		UserQuery:       req.UserQuery,
		AIResponse:      req.AIResponse,
		ConfidenceScore: req.ConfidenceScore,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, in, http.StatusCreated)
}

// Accept writes a suggestion into its phase. It succeeds once per record.
func (h *AIHandler) Accept(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w, "invalid interaction id")
		return
	}
	ph, err := h.svc.AcceptAIInteraction(r.Context(), actor, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, ph, http.StatusOK)
}

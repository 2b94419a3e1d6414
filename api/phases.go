package api

import (
	"net/http"
	"strings"

	"github.com/garnizeh/taosdlc/internal/jobs"
	"github.com/garnizeh/taosdlc/internal/models"
	"github.com/garnizeh/taosdlc/internal/workflow"
	"github.com/garnizeh/taosdlc/pkg/repository"
)

const maxPromptLen = 4000

type PhasesHandler struct {
	svc           *workflow.Service
	jobRepo       repository.JobRepo
	aiMaxAttempts int
}

// NewPhasesHandler creates the phase handlers. A nil job repo disables AI generation.
func NewPhasesHandler(svc *workflow.Service, jr repository.JobRepo, aiMaxAttempts int) *PhasesHandler {
	return &PhasesHandler{svc: svc, jobRepo: jr, aiMaxAttempts: aiMaxAttempts}
}

func (h *PhasesHandler) GetPhase(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w, "invalid phase id")
		return
	}
	ph, err := h.svc.GetPhase(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, ph, http.StatusOK)
}

// UpdatePhase applies a partial update; a status field is routed through the
// state machine after the content write.
func (h *PhasesHandler) UpdatePhase(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w, "invalid phase id")
		return
	}
	var u workflow.PhaseUpdate
	if err := decodeJSON(w, r, &u); err != nil {
		badRequest(w, "invalid request")
		return
	}

	res, err := h.svc.UpdatePhase(r.Context(), actor, id, u)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, res, http.StatusOK)
}

func (h *PhasesHandler) Transition(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w, "invalid phase id")
		return
	}
	var req workflow.TransitionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, "invalid request")
		return
	}

	res, err := h.svc.Transition(r.Context(), actor, id, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, res, http.StatusOK)
}

func (h *PhasesHandler) History(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w, "invalid phase id")
		return
	}
	items, err := h.svc.PhaseHistory(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if items == nil {
		items = []models.PhaseTransition{}
	}
	writeJSON(w, items, http.StatusOK)
}

func (h *PhasesHandler) Outcome(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w, "invalid phase id")
		return
	}
	out, err := h.svc.PhaseOutcome(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"phase_id": id, "outcome": out}, http.StatusOK)
}

type generateRequest struct {
	Prompt string `json:"prompt"`
}

// Generate queues an AI draft of the phase content. The draft shows up as an
// AI interaction once the job ran.
func (h *PhasesHandler) Generate(w http.ResponseWriter, r *http.Request) {
	if h.jobRepo == nil {
		writeErrorCode(w, http.StatusServiceUnavailable, "ai_disabled", "AI generation is disabled", nil)
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w, "invalid phase id")
		return
	}
	var req generateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, "invalid request")
		return
	}
	req.Prompt = strings.TrimSpace(req.Prompt)
	if req.Prompt == "" || len(req.Prompt) > maxPromptLen {
		writeError(w, r, &workflow.ValidationError{Field: "prompt", Message: "must be between 1 and 4000 characters"})
		return
	}

	ph, err := h.svc.AuthorizePhase(r.Context(), actor, id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	pl := jobs.GeneratePayload{PhaseID: ph.ID, Prompt: req.Prompt, UserID: actor.UserID, Role: actor.Role}
	jobID, err := jobs.Enqueue(r.Context(), h.jobRepo, jobs.TypeGeneratePhase, pl, 100, h.aiMaxAttempts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"job_id": jobID, "phase_id": ph.ID}, http.StatusAccepted)
}

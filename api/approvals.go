package api

import (
	"net/http"
	"strconv"

	"github.com/garnizeh/taosdlc/internal/models"
	"github.com/garnizeh/taosdlc/internal/workflow"
)

type ApprovalsHandler struct {
	svc *workflow.Service
}

func NewApprovalsHandler(svc *workflow.Service) *ApprovalsHandler {
	return &ApprovalsHandler{svc: svc}
}

// ListByPhase lists the approvals of a phase. ?round=N narrows to one round,
// ?round=all lists every round; the default is the phase's current round.
func (h *ApprovalsHandler) ListByPhase(w http.ResponseWriter, r *http.Request) {
	phaseID, ok := pathID(r, "phaseId")
	if !ok {
		badRequest(w, "invalid phase id")
		return
	}

	round := -1
	switch q := r.URL.Query().Get("round"); q {
	case "all":
		round = 0
	case "":
	default:
		v, err := strconv.Atoi(q)
		if err != nil || v <= 0 {
			badRequest(w, "invalid round")
			return
		}
		round = v
	}
	if round < 0 {
		ph, err := h.svc.GetPhase(r.Context(), phaseID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		round = ph.ApprovalRound
		if round == 0 {
			writeJSON(w, []models.Approval{}, http.StatusOK)
			return
		}
	}

	items, err := h.svc.ListApprovals(r.Context(), phaseID, round)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if items == nil {
		items = []models.Approval{}
	}
	writeJSON(w, items, http.StatusOK)
}

// Pending lists the open approvals assigned to a user.
func (h *ApprovalsHandler) Pending(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	userID, ok := pathID(r, "userId")
	if !ok {
		badRequest(w, "invalid user id")
		return
	}
	items, err := h.svc.ListPendingApprovals(r.Context(), actor, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if items == nil {
		items = []models.Approval{}
	}
	writeJSON(w, items, http.StatusOK)
}

type decisionRequest struct {
	Status   models.ApprovalStatus `json:"status"`
	Comments string                `json:"comments"`
}

// Decide records an approver's decision.
func (h *ApprovalsHandler) Decide(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w, "invalid approval id")
		return
	}
	var req decisionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, "invalid request")
		return
	}

	res, err := h.svc.RecordDecision(r.Context(), actor, id, req.Status, req.Comments)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, res, http.StatusOK)
}

type requestApprovalsRequest struct {
	ApproverIDs []int64 `json:"approver_ids"`
}

// Request adds approvers to the open round of a pending phase.
func (h *ApprovalsHandler) Request(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	phaseID, ok := pathID(r, "phaseId")
	if !ok {
		badRequest(w, "invalid phase id")
		return
	}
	var req requestApprovalsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, "invalid request")
		return
	}

	items, err := h.svc.RequestApprovals(r.Context(), actor, phaseID, req.ApproverIDs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, items, http.StatusCreated)
}

package api

import (
	"net/http"

	"github.com/garnizeh/taosdlc/internal/models"
	"github.com/garnizeh/taosdlc/internal/workflow"
	"github.com/gorilla/mux"
)

type ProjectsHandler struct {
	svc *workflow.Service
}

func NewProjectsHandler(svc *workflow.Service) *ProjectsHandler {
	return &ProjectsHandler{svc: svc}
}

type createProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type createProjectResponse struct {
	Project *models.Project `json:"project"`
	Phases  []models.Phase  `json:"phases"`
}

func (h *ProjectsHandler) CreateProject(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req createProjectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, "invalid request")
		return
	}

	p, phases, err := h.svc.CreateProject(r.Context(), actor, req.Name, req.Description)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, createProjectResponse{Project: p, Phases: phases}, http.StatusCreated)
}

func (h *ProjectsHandler) ListProjects(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	items, total, err := h.svc.ListProjects(r.Context(), limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if items == nil {
		items = []models.Project{}
	}

	resp := map[string]any{
		"total":  total,
		"limit":  limit,
		"offset": offset,
		"items":  items,
	}
	writeJSON(w, resp, http.StatusOK)
}

func (h *ProjectsHandler) GetProject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w, "invalid project id")
		return
	}
	p, err := h.svc.GetProject(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, p, http.StatusOK)
}

func (h *ProjectsHandler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w, "invalid project id")
		return
	}
	if err := h.svc.DeleteProject(r.Context(), actor, id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Overview returns the projection of a project: phases with progress and
// accessibility plus the stored and derived current phase.
func (h *ProjectsHandler) Overview(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w, "invalid project id")
		return
	}
	ov, err := h.svc.ProjectOverview(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, ov, http.StatusOK)
}

func (h *ProjectsHandler) ListPhases(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w, "invalid project id")
		return
	}
	phases, err := h.svc.ListPhases(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if phases == nil {
		phases = []models.Phase{}
	}
	writeJSON(w, phases, http.StatusOK)
}

// Stakeholders

type addStakeholderRequest struct {
	UserID int64                  `json:"user_id"`
	Role   models.StakeholderRole `json:"role"`
}

func (h *ProjectsHandler) ListStakeholders(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w, "invalid project id")
		return
	}
	items, err := h.svc.ListStakeholders(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if items == nil {
		items = []models.ProjectStakeholder{}
	}
	writeJSON(w, items, http.StatusOK)
}

func (h *ProjectsHandler) AddStakeholder(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w, "invalid project id")
		return
	}
	var req addStakeholderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, "invalid request")
		return
	}
	s, err := h.svc.AddStakeholder(r.Context(), actor, id, req.UserID, req.Role)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, s, http.StatusCreated)
}

func (h *ProjectsHandler) RemoveStakeholder(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w, "invalid project id")
		return
	}
	userID, ok := pathID(r, "userId")
	if !ok {
		badRequest(w, "invalid user id")
		return
	}
	role := models.StakeholderRole(mux.Vars(r)["role"])
	if err := h.svc.RemoveStakeholder(r.Context(), actor, id, userID, role); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

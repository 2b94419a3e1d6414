package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/garnizeh/taosdlc/internal/models"
	"github.com/garnizeh/taosdlc/pkg/repository"
)

// Actor is the authenticated caller of a workflow operation.
type Actor struct {
	UserID int64
	Role   models.UserRole
}

func (a Actor) IsAdmin() bool { return a.Role == models.RoleAdmin }

// Options configures a Service.
type Options struct {
	PhaseCount       int
	Policy           Policy
	DefaultApprovers []int64
	Validator        ContentValidator
	Logger           *slog.Logger
}

// Service is the entry point of the workflow core. It authorizes callers and
// runs each compound operation in one transaction.
type Service struct {
	store   repository.Store
	machine *StateMachine
	engine  *ApprovalEngine
	logger  *slog.Logger
}

func NewService(store repository.Store, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	machine := NewStateMachine(opts.Validator, opts.PhaseCount, opts.DefaultApprovers, logger)
	engine := NewApprovalEngine(store, opts.Policy, machine, logger)
	return &Service{store: store, machine: machine, engine: engine, logger: logger}
}

func (s *Service) PhaseCount() int { return s.machine.PhaseCount() }

func (s *Service) Policy() Policy { return s.engine.Policy() }

// Projects

// CreateProject creates a project with all of its phases at not_started.
// The creator is recorded as the project owner.
func (s *Service) CreateProject(ctx context.Context, actor Actor, name, description string) (*models.Project, []models.Phase, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil, validationErr("name", "is required")
	}

	var (
		proj   *models.Project
		phases []models.Phase
	)
	err := s.store.InTx(ctx, func(tx repository.Store) error {
		p := &models.Project{Name: name, Description: description, CurrentPhase: 1, Status: models.ProjectActive, CreatedBy: actor.UserID}
		id, err := tx.CreateProject(ctx, p)
		if err != nil {
			return fmt.Errorf("create project: %w", err)
		}

		if actor.UserID > 0 {
			if _, err := tx.AddStakeholder(ctx, &models.ProjectStakeholder{ProjectID: id, UserID: actor.UserID, Role: models.StakeholderOwner}); err != nil {
				return fmt.Errorf("add owner: %w", err)
			}
		}

		for n := 1; n <= s.machine.phaseCount; n++ {
			ph := &models.Phase{ProjectID: id, PhaseNumber: n, PhaseName: PhaseName(n), Status: models.PhaseNotStarted, Data: json.RawMessage("{}")}
			if _, err := tx.CreatePhase(ctx, ph); err != nil {
				return fmt.Errorf("create phase %d: %w", n, err)
			}
		}

		if proj, err = tx.GetProject(ctx, id); err != nil {
			return err
		}
		phases, err = tx.ListPhasesByProject(ctx, id)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("project created", slog.Int64("project_id", proj.ID), slog.Int64("created_by", actor.UserID), slog.Int("phases", len(phases)))
	return proj, phases, nil
}

func (s *Service) GetProject(ctx context.Context, id int64) (*models.Project, error) {
	p, err := s.store.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, notFound("project", id)
	}
	return p, nil
}

func (s *Service) ListProjects(ctx context.Context, limit, offset int) ([]models.Project, int64, error) {
	items, err := s.store.ListProjects(ctx, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.store.CountProjects(ctx)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// DeleteProject removes a project with its phases, approvals and AI records.
func (s *Service) DeleteProject(ctx context.Context, actor Actor, id int64) error {
	return s.store.InTx(ctx, func(tx repository.Store) error {
		p, err := tx.GetProject(ctx, id)
		if err != nil {
			return err
		}
		if p == nil {
			return notFound("project", id)
		}
		if err := requireOwner(ctx, tx, actor, id); err != nil {
			return err
		}
		if err := tx.DeleteProject(ctx, id); err != nil {
			return err
		}
		s.logger.Info("project deleted", slog.Int64("project_id", id), slog.Int64("actor_id", actor.UserID))
		return nil
	})
}

// ProjectOverview returns the projection of a project's lifecycle.
func (s *Service) ProjectOverview(ctx context.Context, id int64) (*Overview, error) {
	var ov Overview
	err := s.store.InTx(ctx, func(tx repository.Store) error {
		p, err := tx.GetProject(ctx, id)
		if err != nil {
			return err
		}
		if p == nil {
			return notFound("project", id)
		}
		phases, err := tx.ListPhasesByProject(ctx, id)
		if err != nil {
			return err
		}
		ov = BuildOverview(*p, phases, len(phases))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &ov, nil
}

// Stakeholders

func (s *Service) AddStakeholder(ctx context.Context, actor Actor, projectID, userID int64, role models.StakeholderRole) (*models.ProjectStakeholder, error) {
	if _, err := models.ParseStakeholderRole(string(role)); err != nil {
		return nil, validationErr("role", "%v", err)
	}

	var out *models.ProjectStakeholder
	err := s.store.InTx(ctx, func(tx repository.Store) error {
		p, err := tx.GetProject(ctx, projectID)
		if err != nil {
			return err
		}
		if p == nil {
			return notFound("project", projectID)
		}
		if err := requireOwner(ctx, tx, actor, projectID); err != nil {
			return err
		}
		u, err := tx.GetUserByID(ctx, userID)
		if err != nil {
			return err
		}
		if u == nil {
			return validationErr("user_id", "user %d does not exist", userID)
		}

		st := &models.ProjectStakeholder{ProjectID: projectID, UserID: userID, Role: role}
		id, err := tx.AddStakeholder(ctx, st)
		if err != nil {
			return err
		}
		st.ID = id
		out = st
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) RemoveStakeholder(ctx context.Context, actor Actor, projectID, userID int64, role models.StakeholderRole) error {
	return s.store.InTx(ctx, func(tx repository.Store) error {
		if err := requireOwner(ctx, tx, actor, projectID); err != nil {
			return err
		}
		removed, err := tx.RemoveStakeholder(ctx, projectID, userID, role)
		if err != nil {
			return err
		}
		if !removed {
			return fmt.Errorf("stakeholder %d (%s) on project %d: %w", userID, role, projectID, ErrNotFound)
		}
		return nil
	})
}

func (s *Service) ListStakeholders(ctx context.Context, projectID int64) ([]models.ProjectStakeholder, error) {
	if _, err := s.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	return s.store.ListStakeholders(ctx, projectID)
}

// Phases

func (s *Service) ListPhases(ctx context.Context, projectID int64) ([]models.Phase, error) {
	if _, err := s.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	return s.store.ListPhasesByProject(ctx, projectID)
}

func (s *Service) GetPhase(ctx context.Context, id int64) (*models.Phase, error) {
	ph, err := s.store.GetPhase(ctx, id)
	if err != nil {
		return nil, err
	}
	if ph == nil {
		return nil, notFound("phase", id)
	}
	return ph, nil
}

// PhaseUpdate is a partial update of a phase. Status changes are routed
// through the state machine, never written directly.
type PhaseUpdate struct {
	Data              *json.RawMessage    `json:"data,omitempty"`
	EstimatedHours    *float64            `json:"estimated_hours,omitempty"`
	ActualHours       *float64            `json:"actual_hours,omitempty"`
	AIConfidenceScore *int                `json:"ai_confidence_score,omitempty"`
	Status            *models.PhaseStatus `json:"status,omitempty"`
	ApproverIDs       []int64             `json:"approver_ids,omitempty"`
	Reason            string              `json:"reason,omitempty"`
}

// Validate checks field ranges before anything is written.
func (u PhaseUpdate) Validate() error {
	if u.AIConfidenceScore != nil && (*u.AIConfidenceScore < 0 || *u.AIConfidenceScore > 100) {
		return validationErr("ai_confidence_score", "must be between 0 and 100, got %d", *u.AIConfidenceScore)
	}
	if u.EstimatedHours != nil && *u.EstimatedHours < 0 {
		return validationErr("estimated_hours", "must not be negative")
	}
	if u.ActualHours != nil && *u.ActualHours < 0 {
		return validationErr("actual_hours", "must not be negative")
	}
	if u.Status != nil && !u.Status.Valid() {
		return validationErr("status", "unknown phase status %q", *u.Status)
	}
	if u.Data != nil && !validDocument(*u.Data) {
		return validationErr("data", "must be a JSON object or array")
	}
	return nil
}

// UpdatePhase applies a partial update. Content is written before any status
// change so a single request can fill a phase and submit it.
func (s *Service) UpdatePhase(ctx context.Context, actor Actor, id int64, u PhaseUpdate) (*TransitionResult, error) {
	if err := u.Validate(); err != nil {
		return nil, err
	}

	var res TransitionResult
	err := s.store.InTx(ctx, func(tx repository.Store) error {
		ph, proj, err := loadPhaseProject(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := requireMember(ctx, tx, actor, proj.ID); err != nil {
			return err
		}

		if u.Data != nil {
			if err := s.machine.writeContent(ctx, tx, actor, ph, proj, *u.Data); err != nil {
				return err
			}
		}

		if u.EstimatedHours != nil || u.ActualHours != nil || u.AIConfidenceScore != nil {
			if contentLocked(ph.Status) {
				return transitionErr(ph.Status, ph.Status, "phase content is locked")
			}
			if u.EstimatedHours != nil {
				ph.EstimatedHours = u.EstimatedHours
			}
			if u.ActualHours != nil {
				ph.ActualHours = u.ActualHours
			}
			if u.AIConfidenceScore != nil {
				ph.AIConfidenceScore = u.AIConfidenceScore
			}
			if err := tx.UpdatePhase(ctx, ph); err != nil {
				return err
			}
		}

		if u.Status != nil && *u.Status != ph.Status {
			approvals, err := s.transition(ctx, tx, actor, ph, proj, *u.Status, u.ApproverIDs, u.Reason)
			if err != nil {
				return err
			}
			res.Approvals = approvals
		}

		res.Phase = *ph
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// TransitionRequest asks for an explicit phase status change.
type TransitionRequest struct {
	To          models.PhaseStatus `json:"to"`
	ApproverIDs []int64            `json:"approver_ids,omitempty"`
	Reason      string             `json:"reason,omitempty"`
}

// TransitionResult is the phase after a change and the approvals a
// submission created.
type TransitionResult struct {
	Phase     models.Phase      `json:"phase"`
	Approvals []models.Approval `json:"approvals,omitempty"`
}

// Transition performs an explicit status change: start, submit, rework,
// withdraw or the admin reopen.
func (s *Service) Transition(ctx context.Context, actor Actor, id int64, req TransitionRequest) (*TransitionResult, error) {
	if !req.To.Valid() {
		return nil, validationErr("to", "unknown phase status %q", req.To)
	}

	var res TransitionResult
	err := s.store.InTx(ctx, func(tx repository.Store) error {
		ph, proj, err := loadPhaseProject(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := requireMember(ctx, tx, actor, proj.ID); err != nil {
			return err
		}
		approvals, err := s.transition(ctx, tx, actor, ph, proj, req.To, req.ApproverIDs, req.Reason)
		if err != nil {
			return err
		}
		res = TransitionResult{Phase: *ph, Approvals: approvals}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (s *Service) transition(ctx context.Context, tx repository.Store, actor Actor, ph *models.Phase, proj *models.Project, to models.PhaseStatus, approverIDs []int64, reason string) ([]models.Approval, error) {
	switch to {
	case models.PhaseInProgress:
		switch ph.Status {
		case models.PhaseNotStarted:
			return nil, s.machine.start(ctx, tx, actor, ph, proj, reason)
		case models.PhaseRejected:
			return nil, s.machine.rework(ctx, tx, actor, ph, reason)
		case models.PhasePendingApproval:
			return nil, s.machine.withdraw(ctx, tx, actor, ph, reason)
		case models.PhaseApproved:
			return nil, s.machine.reopen(ctx, tx, actor, ph, proj, reason)
		}
		return nil, transitionErr(ph.Status, to, "phase is already in progress")

	case models.PhasePendingApproval:
		approvers, err := s.machine.submit(ctx, tx, actor, ph, approverIDs, reason)
		if err != nil {
			return nil, err
		}
		approvals, err := s.engine.WithStore(tx).RequestApprovals(ctx, ph.ID, approvers)
		if err != nil {
			return nil, err
		}
		s.logger.Info("phase submitted for approval",
			slog.Int64("phase_id", ph.ID),
			slog.Int("round", ph.ApprovalRound),
			slog.Int("approvers", len(approvals)),
		)
		return approvals, nil

	case models.PhaseApproved, models.PhaseRejected:
		return nil, transitionErr(ph.Status, to, "approval outcomes are set by approver decisions")

	default:
		return nil, transitionErr(ph.Status, to, "a started phase cannot return to not_started")
	}
}

// PhaseHistory lists the recorded status changes of a phase, oldest first.
func (s *Service) PhaseHistory(ctx context.Context, id int64) ([]models.PhaseTransition, error) {
	if _, err := s.GetPhase(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListTransitionsByPhase(ctx, id)
}

// PhaseOutcome aggregates the decisions of the phase's current round.
func (s *Service) PhaseOutcome(ctx context.Context, id int64) (Outcome, error) {
	return s.engine.ComputeOutcome(ctx, id)
}

// Approvals

// ListApprovals lists a phase's approvals; round <= 0 lists every round.
func (s *Service) ListApprovals(ctx context.Context, phaseID int64, round int) ([]models.Approval, error) {
	if _, err := s.GetPhase(ctx, phaseID); err != nil {
		return nil, err
	}
	return s.store.ListApprovalsByPhase(ctx, phaseID, round)
}

// ListPendingApprovals lists the open approvals of userID. Users see their
// own inbox; admins may look at anyone's.
func (s *Service) ListPendingApprovals(ctx context.Context, actor Actor, userID int64) ([]models.Approval, error) {
	if actor.UserID != userID && !actor.IsAdmin() {
		return nil, notAuthorized("user %d cannot list approvals of user %d", actor.UserID, userID)
	}
	return s.store.ListPendingByApprover(ctx, userID)
}

// RequestApprovals adds approvers to the open round of a pending phase.
func (s *Service) RequestApprovals(ctx context.Context, actor Actor, phaseID int64, approverIDs []int64) ([]models.Approval, error) {
	var out []models.Approval
	err := s.store.InTx(ctx, func(tx repository.Store) error {
		_, proj, err := loadPhaseProject(ctx, tx, phaseID)
		if err != nil {
			return err
		}
		if err := requireMember(ctx, tx, actor, proj.ID); err != nil {
			return err
		}
		if err := s.machine.checkApprovers(ctx, tx, actor, proj.ID, dedupe(approverIDs)); err != nil {
			return err
		}
		out, err = s.engine.WithStore(tx).RequestApprovals(ctx, phaseID, approverIDs)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RecordDecision resolves an approval and applies the resulting outcome.
func (s *Service) RecordDecision(ctx context.Context, actor Actor, approvalID int64, decision models.ApprovalStatus, comments string) (*DecisionResult, error) {
	return s.engine.RecordDecision(ctx, actor, approvalID, decision, comments)
}

// AI interactions

// RecordAIInteraction appends an AI generation record.
func (s *Service) RecordAIInteraction(ctx context.Context, actor Actor, in models.AIInteraction) (*models.AIInteraction, error) {
	if strings.TrimSpace(in.UserQuery) == "" {
		return nil, validationErr("user_query", "is required")
	}
	if in.ConfidenceScore < 0 || in.ConfidenceScore > 100 {
		return nil, validationErr("confidence_score", "must be between 0 and 100, got %d", in.ConfidenceScore)
	}

	err := s.store.InTx(ctx, func(tx repository.Store) error {
		if in.PhaseID != nil {
			ph, err := tx.GetPhase(ctx, *in.PhaseID)
			if err != nil {
				return err
			}
			if ph == nil {
				return notFound("phase", *in.PhaseID)
			}
			if in.ProjectID == 0 {
				in.ProjectID = ph.ProjectID
			}
			if ph.ProjectID != in.ProjectID {
				return validationErr("phase_id", "phase %d does not belong to project %d", ph.ID, in.ProjectID)
			}
		}
		p, err := tx.GetProject(ctx, in.ProjectID)
		if err != nil {
			return err
		}
		if p == nil {
			return notFound("project", in.ProjectID)
		}
		if err := requireMember(ctx, tx, actor, p.ID); err != nil {
			return err
		}

		if actor.UserID > 0 {
			uid := actor.UserID
			in.UserID = &uid
		}
		in.Accepted = false
		id, err := tx.CreateAIInteraction(ctx, &in)
		if err != nil {
			return err
		}
		in.ID = id
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &in, nil
}

func (s *Service) ListAIInteractions(ctx context.Context, phaseID int64) ([]models.AIInteraction, error) {
	if _, err := s.GetPhase(ctx, phaseID); err != nil {
		return nil, err
	}
	return s.store.ListAIInteractionsByPhase(ctx, phaseID)
}

// AcceptAIInteraction marks a suggestion accepted and writes it into the
// phase content together with its confidence score. A record is accepted at
// most once and the phase content lock applies.
func (s *Service) AcceptAIInteraction(ctx context.Context, actor Actor, id int64) (*models.Phase, error) {
	var out *models.Phase
	err := s.store.InTx(ctx, func(tx repository.Store) error {
		in, err := tx.GetAIInteraction(ctx, id)
		if err != nil {
			return err
		}
		if in == nil {
			return notFound("ai interaction", id)
		}
		if in.PhaseID == nil {
			return validationErr("phase_id", "ai interaction %d is not tied to a phase", id)
		}
		if in.Accepted {
			return fmt.Errorf("ai interaction %d: %w", id, ErrAlreadyAccepted)
		}

		ph, proj, err := loadPhaseProject(ctx, tx, *in.PhaseID)
		if err != nil {
			return err
		}
		if err := requireMember(ctx, tx, actor, proj.ID); err != nil {
			return err
		}

		ok, err := tx.MarkAIInteractionAccepted(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("ai interaction %d: %w", id, ErrAlreadyAccepted)
		}

		doc, err := suggestionDocument(in.AIResponse)
		if err != nil {
			return err
		}
		if err := s.machine.writeContent(ctx, tx, actor, ph, proj, doc); err != nil {
			return err
		}
		score := in.ConfidenceScore
		ph.AIConfidenceScore = &score
		if err := tx.UpdatePhase(ctx, ph); err != nil {
			return err
		}
		out = ph
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// suggestionDocument turns an AI response into phase content. JSON documents
// are used as is; anything else is wrapped.
func suggestionDocument(resp string) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(resp)
	if validDocument([]byte(trimmed)) {
		return json.RawMessage(trimmed), nil
	}
	b, err := json.Marshal(map[string]string{"content": trimmed})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// AuthorizePhase loads a phase and checks that actor may work on it.
func (s *Service) AuthorizePhase(ctx context.Context, actor Actor, phaseID int64) (*models.Phase, error) {
	ph, err := s.GetPhase(ctx, phaseID)
	if err != nil {
		return nil, err
	}
	if err := requireMember(ctx, s.store, actor, ph.ProjectID); err != nil {
		return nil, err
	}
	return ph, nil
}

func requireMember(ctx context.Context, tx repository.Store, actor Actor, projectID int64) error {
	if actor.IsAdmin() {
		return nil
	}
	ok, err := tx.IsStakeholder(ctx, projectID, actor.UserID)
	if err != nil {
		return err
	}
	if !ok {
		return notAuthorized("user %d is not a stakeholder of project %d", actor.UserID, projectID)
	}
	return nil
}

func requireOwner(ctx context.Context, tx repository.Store, actor Actor, projectID int64) error {
	ok, err := isOwner(ctx, tx, actor, projectID)
	if err != nil {
		return err
	}
	if !ok {
		return notAuthorized("user %d does not own project %d", actor.UserID, projectID)
	}
	return nil
}

// isOwner reports whether actor is an admin or an owner stakeholder of the project.
func isOwner(ctx context.Context, tx repository.Store, actor Actor, projectID int64) (bool, error) {
	if actor.IsAdmin() {
		return true, nil
	}
	owners, err := tx.ListStakeholdersByRole(ctx, projectID, models.StakeholderOwner)
	if err != nil {
		return false, err
	}
	for _, o := range owners {
		if o.UserID == actor.UserID {
			return true, nil
		}
	}
	return false, nil
}

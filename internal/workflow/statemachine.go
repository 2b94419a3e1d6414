package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/garnizeh/taosdlc/internal/models"
	"github.com/garnizeh/taosdlc/pkg/repository"
)

// StateMachine enforces legal phase status transitions and keeps
// Project.current_phase in step with phase outcomes. It holds no store of its
// own: every step runs inside the transaction it is handed.
type StateMachine struct {
	validator        ContentValidator
	phaseCount       int
	defaultApprovers []int64
	logger           *slog.Logger
}

var _ OutcomeHandler = (*StateMachine)(nil)

func NewStateMachine(validator ContentValidator, phaseCount int, defaultApprovers []int64, logger *slog.Logger) *StateMachine {
	if !validPhaseCount(phaseCount) {
		phaseCount = MinPhaseCount
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StateMachine{
		validator:        validator,
		phaseCount:       phaseCount,
		defaultApprovers: defaultApprovers,
		logger:           logger,
	}
}

// PhaseCount is the number of phases every project is provisioned with.
func (m *StateMachine) PhaseCount() int { return m.phaseCount }

// start moves a phase from not_started to in_progress. Phase 1 may always be
// started; any other phase needs its predecessor approved and must not be
// ahead of the project's current phase.
func (m *StateMachine) start(ctx context.Context, tx repository.Store, actor Actor, ph *models.Phase, proj *models.Project, reason string) error {
	if ph.Status != models.PhaseNotStarted {
		return transitionErr(ph.Status, models.PhaseInProgress, "phase already started")
	}
	if ph.PhaseNumber > 1 {
		prev, err := tx.GetPhaseByNumber(ctx, ph.ProjectID, ph.PhaseNumber-1)
		if err != nil {
			return fmt.Errorf("load predecessor phase: %w", err)
		}
		if prev == nil || prev.Status != models.PhaseApproved {
			return transitionErr(ph.Status, models.PhaseInProgress, "predecessor phase not approved")
		}
	}
	if ph.PhaseNumber > proj.CurrentPhase {
		return transitionErr(ph.Status, models.PhaseInProgress, fmt.Sprintf("phase %d is ahead of the project's current phase %d", ph.PhaseNumber, proj.CurrentPhase))
	}

	if ph.StartDate == nil {
		ts := nowMillis()
		ph.StartDate = &ts
	}
	return m.move(ctx, tx, actor, ph, models.PhaseInProgress, reason)
}

// submit moves an in_progress phase to pending_approval and opens a new
// approval round. It returns the approvers the round must be routed to.
func (m *StateMachine) submit(ctx context.Context, tx repository.Store, actor Actor, ph *models.Phase, approverIDs []int64, reason string) ([]int64, error) {
	if ph.Status != models.PhaseInProgress {
		return nil, transitionErr(ph.Status, models.PhasePendingApproval, "only an in-progress phase can be submitted")
	}
	if !HasContent(ph.Data) {
		return nil, transitionErr(ph.Status, models.PhasePendingApproval, "phase content is empty")
	}
	if m.validator != nil {
		issues, err := m.validator.ValidatePhaseContent(ctx, ph.PhaseNumber, ph.Data)
		if err != nil {
			return nil, fmt.Errorf("validate phase content: %w", err)
		}
		if len(issues) > 0 {
			return nil, transitionErr(ph.Status, models.PhasePendingApproval, "phase content does not satisfy its schema: "+strings.Join(issues, "; "))
		}
	}

	approvers, err := m.resolveApprovers(ctx, tx, actor, ph.ProjectID, approverIDs)
	if err != nil {
		return nil, err
	}
	if len(approvers) == 0 {
		return nil, transitionErr(ph.Status, models.PhasePendingApproval, "no approvers configured for the project")
	}

	ph.ApprovalRound++
	if err := m.move(ctx, tx, actor, ph, models.PhasePendingApproval, reason); err != nil {
		return nil, err
	}
	return approvers, nil
}

// resolveApprovers picks the explicit set when given, else the project's
// approver stakeholders, else the configured default approvers. The submitter
// is never routed their own submission.
func (m *StateMachine) resolveApprovers(ctx context.Context, tx repository.Store, actor Actor, projectID int64, explicit []int64) ([]int64, error) {
	if len(explicit) > 0 {
		ids := dedupe(explicit)
		if err := m.checkApprovers(ctx, tx, actor, projectID, ids); err != nil {
			return nil, err
		}
		return ids, nil
	}

	ids, err := m.designatedApprovers(ctx, tx, projectID)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(ids, func(id int64) bool { return id == actor.UserID }), nil
}

// designatedApprovers lists the project's approver stakeholders, falling back
// to the configured default approvers.
func (m *StateMachine) designatedApprovers(ctx context.Context, tx repository.Store, projectID int64) ([]int64, error) {
	rows, err := tx.ListStakeholdersByRole(ctx, projectID, models.StakeholderApprover)
	if err != nil {
		return nil, fmt.Errorf("list approvers: %w", err)
	}
	if len(rows) == 0 {
		return dedupe(m.defaultApprovers), nil
	}
	ids := make([]int64, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.UserID)
	}
	return dedupe(ids), nil
}

// checkApprovers validates a caller-chosen approver set. Nobody may route an
// approval to themselves. Project owners and admins may pick any user; other
// members are limited to the designated approvers.
func (m *StateMachine) checkApprovers(ctx context.Context, tx repository.Store, actor Actor, projectID int64, ids []int64) error {
	if slices.Contains(ids, actor.UserID) {
		return validationErr("approver_ids", "user %d cannot approve their own submission", actor.UserID)
	}
	owner, err := isOwner(ctx, tx, actor, projectID)
	if err != nil {
		return err
	}
	if owner {
		return nil
	}
	designated, err := m.designatedApprovers(ctx, tx, projectID)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if !slices.Contains(designated, id) {
			return notAuthorized("user %d is not a designated approver of project %d", id, projectID)
		}
	}
	return nil
}

// rework moves a rejected phase back to in_progress so it can be resubmitted.
func (m *StateMachine) rework(ctx context.Context, tx repository.Store, actor Actor, ph *models.Phase, reason string) error {
	if ph.Status != models.PhaseRejected {
		return transitionErr(ph.Status, models.PhaseInProgress, "only a rejected phase can be reworked")
	}
	return m.move(ctx, tx, actor, ph, models.PhaseInProgress, reason)
}

// withdraw pulls a pending submission back to in_progress. The open round is
// closed: its remaining approvals can no longer be decided.
func (m *StateMachine) withdraw(ctx context.Context, tx repository.Store, actor Actor, ph *models.Phase, reason string) error {
	if ph.Status != models.PhasePendingApproval {
		return transitionErr(ph.Status, models.PhaseInProgress, "no pending submission to withdraw")
	}
	return m.move(ctx, tx, actor, ph, models.PhaseInProgress, reason)
}

// reopen is the administrative override that moves an approved phase back to
// in_progress. It is only allowed while the next phase has not started and
// resets the project's current phase to the reopened one.
func (m *StateMachine) reopen(ctx context.Context, tx repository.Store, actor Actor, ph *models.Phase, proj *models.Project, reason string) error {
	if !actor.IsAdmin() {
		return notAuthorized("reopening an approved phase requires an admin")
	}
	if ph.Status != models.PhaseApproved {
		return transitionErr(ph.Status, models.PhaseInProgress, "only an approved phase can be reopened")
	}
	next, err := tx.GetPhaseByNumber(ctx, ph.ProjectID, ph.PhaseNumber+1)
	if err != nil {
		return fmt.Errorf("load next phase: %w", err)
	}
	if next != nil && next.Status != models.PhaseNotStarted {
		return transitionErr(ph.Status, models.PhaseInProgress, "next phase has already started")
	}

	ph.EndDate = nil
	if err := m.move(ctx, tx, actor, ph, models.PhaseInProgress, reason); err != nil {
		return err
	}
	if err := tx.UpdateProjectProgress(ctx, proj.ID, ph.PhaseNumber, models.ProjectActive); err != nil {
		return fmt.Errorf("update project progress: %w", err)
	}
	proj.CurrentPhase = ph.PhaseNumber
	proj.Status = models.ProjectActive

	m.logger.Warn("approved phase reopened by admin",
		slog.Int64("phase_id", ph.ID),
		slog.Int64("project_id", proj.ID),
		slog.Int("phase_number", ph.PhaseNumber),
		slog.Int64("actor_id", actor.UserID),
		slog.String("reason", reason),
	)
	return nil
}

// HandleOutcome applies a determined approval outcome to its phase inside the
// caller's transaction.
func (m *StateMachine) HandleOutcome(ctx context.Context, tx repository.Store, ev PhaseOutcomeDetermined) error {
	return tx.InTx(ctx, func(tx repository.Store) error {
		ph, proj, err := loadPhaseProject(ctx, tx, ev.PhaseID)
		if err != nil {
			return err
		}
		return m.applyOutcome(ctx, tx, ph, proj, ev)
	})
}

func (m *StateMachine) applyOutcome(ctx context.Context, tx repository.Store, ph *models.Phase, proj *models.Project, ev PhaseOutcomeDetermined) error {
	actor := Actor{UserID: ev.ActorID}
	reason := fmt.Sprintf("approval round %d %s", ev.Round, ev.Outcome)

	switch ev.Outcome {
	case OutcomeApproved:
		if ph.Status != models.PhasePendingApproval {
			return transitionErr(ph.Status, models.PhaseApproved, "no pending approvals to resolve")
		}
		ts := nowMillis()
		ph.EndDate = &ts
		if err := m.move(ctx, tx, actor, ph, models.PhaseApproved, reason); err != nil {
			return err
		}
		if proj.CurrentPhase != ph.PhaseNumber {
			return nil
		}
		next, status := proj.CurrentPhase, proj.Status
		if ph.PhaseNumber < m.phaseCount {
			next = ph.PhaseNumber + 1
		} else {
			status = models.ProjectCompleted
		}
		if err := tx.UpdateProjectProgress(ctx, proj.ID, next, status); err != nil {
			return fmt.Errorf("update project progress: %w", err)
		}
		proj.CurrentPhase, proj.Status = next, status
		m.logger.Info("phase approved",
			slog.Int64("project_id", proj.ID),
			slog.Int("phase_number", ph.PhaseNumber),
			slog.Int("current_phase", next),
			slog.String("project_status", string(status)),
		)
		return nil
	case OutcomeRejected:
		if ph.Status != models.PhasePendingApproval {
			return transitionErr(ph.Status, models.PhaseRejected, "no pending approvals to resolve")
		}
		return m.move(ctx, tx, actor, ph, models.PhaseRejected, reason)
	default:
		return fmt.Errorf("outcome %q does not resolve a phase", ev.Outcome)
	}
}

// writeContent replaces the data payload of a phase. Writing to a phase that
// has not started starts it and writing to a rejected phase reworks it.
// Content is locked while a submission is pending or after approval.
func (m *StateMachine) writeContent(ctx context.Context, tx repository.Store, actor Actor, ph *models.Phase, proj *models.Project, data json.RawMessage) error {
	if !validDocument(data) {
		return validationErr("data", "must be a JSON object or array")
	}

	switch ph.Status {
	case models.PhaseNotStarted:
		if err := m.start(ctx, tx, actor, ph, proj, "content written"); err != nil {
			return err
		}
	case models.PhaseRejected:
		if err := m.rework(ctx, tx, actor, ph, "content revised"); err != nil {
			return err
		}
	}
	if contentLocked(ph.Status) {
		return transitionErr(ph.Status, ph.Status, "phase content is locked")
	}

	ph.Data = data
	return tx.UpdatePhase(ctx, ph)
}

// contentLocked reports whether a phase's data and metadata are frozen.
func contentLocked(s models.PhaseStatus) bool {
	return s == models.PhasePendingApproval || s == models.PhaseApproved
}

// move persists a status change and appends it to the transition log.
func (m *StateMachine) move(ctx context.Context, tx repository.Store, actor Actor, ph *models.Phase, to models.PhaseStatus, reason string) error {
	from := ph.Status
	ph.Status = to
	if err := tx.UpdatePhase(ctx, ph); err != nil {
		return fmt.Errorf("update phase: %w", err)
	}

	rec := &models.PhaseTransition{PhaseID: ph.ID, From: from, To: to, Reason: reason}
	if actor.UserID > 0 {
		id := actor.UserID
		rec.ActorID = &id
	}
	if _, err := tx.CreateTransition(ctx, rec); err != nil {
		return err
	}

	m.logger.Debug("phase transition",
		slog.Int64("phase_id", ph.ID),
		slog.String("from", string(from)),
		slog.String("to", string(to)),
		slog.Int64("actor_id", actor.UserID),
	)
	return nil
}

func loadPhaseProject(ctx context.Context, tx repository.Store, phaseID int64) (*models.Phase, *models.Project, error) {
	ph, err := tx.GetPhase(ctx, phaseID)
	if err != nil {
		return nil, nil, fmt.Errorf("load phase: %w", err)
	}
	if ph == nil {
		return nil, nil, notFound("phase", phaseID)
	}
	proj, err := tx.GetProject(ctx, ph.ProjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("load project: %w", err)
	}
	if proj == nil {
		return nil, nil, notFound("project", ph.ProjectID)
	}
	return ph, proj, nil
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func nowMillis() int64 {
	return time.Now().UTC().UnixMilli()
}

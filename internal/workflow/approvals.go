package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/garnizeh/taosdlc/internal/models"
	"github.com/garnizeh/taosdlc/pkg/repository"
)

// PhaseOutcomeDetermined is emitted when an approval round leaves pending.
type PhaseOutcomeDetermined struct {
	PhaseID int64
	Round   int
	Outcome Outcome
	// ActorID is the approver whose decision settled the round.
	ActorID int64
}

// OutcomeHandler consumes outcome events synchronously inside the
// transaction that recorded the deciding approval.
type OutcomeHandler interface {
	HandleOutcome(ctx context.Context, tx repository.Store, ev PhaseOutcomeDetermined) error
}

// DecisionResult is the state after a recorded decision.
type DecisionResult struct {
	Approval models.Approval `json:"approval"`
	Outcome  Outcome         `json:"outcome"`
	Phase    models.Phase    `json:"phase"`
}

// ApprovalEngine creates approval requests and aggregates decisions into a
// phase level outcome.
type ApprovalEngine struct {
	store   repository.Store
	policy  Policy
	handler OutcomeHandler
	logger  *slog.Logger
}

func NewApprovalEngine(store repository.Store, policy Policy, handler OutcomeHandler, logger *slog.Logger) *ApprovalEngine {
	if policy.Aggregation == "" {
		policy.Aggregation = AggregationVeto
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ApprovalEngine{store: store, policy: policy, handler: handler, logger: logger}
}

// WithStore returns a copy of the engine operating on s.
func (e *ApprovalEngine) WithStore(s repository.Store) *ApprovalEngine {
	c := *e
	c.store = s
	return &c
}

func (e *ApprovalEngine) Policy() Policy { return e.policy }

// RequestApprovals creates a pending approval in the phase's open round for
// every approver that has none yet. Approvers who already decided in this
// round are skipped; an approver with a pending row fails the whole request.
func (e *ApprovalEngine) RequestApprovals(ctx context.Context, phaseID int64, approverIDs []int64) ([]models.Approval, error) {
	if len(approverIDs) == 0 {
		return nil, validationErr("approver_ids", "at least one approver is required")
	}

	var created []models.Approval
	err := e.store.InTx(ctx, func(tx repository.Store) error {
		ph, err := tx.GetPhase(ctx, phaseID)
		if err != nil {
			return fmt.Errorf("load phase: %w", err)
		}
		if ph == nil {
			return notFound("phase", phaseID)
		}
		if ph.Status != models.PhasePendingApproval {
			return transitionErr(ph.Status, models.PhasePendingApproval, "phase is not awaiting approval")
		}

		existing, err := tx.ListApprovalsByPhase(ctx, ph.ID, ph.ApprovalRound)
		if err != nil {
			return fmt.Errorf("list approvals: %w", err)
		}
		byApprover := make(map[int64]models.Approval, len(existing))
		for _, a := range existing {
			byApprover[a.ApproverID] = a
		}

		for _, id := range dedupe(approverIDs) {
			u, err := tx.GetUserByID(ctx, id)
			if err != nil {
				return fmt.Errorf("load approver: %w", err)
			}
			if u == nil {
				return validationErr("approver_ids", "user %d does not exist", id)
			}

			if prev, ok := byApprover[id]; ok {
				if prev.Status == models.ApprovalPending {
					return fmt.Errorf("approver %d on phase %d round %d: %w", id, ph.ID, ph.ApprovalRound, ErrDuplicateApprovalRequest)
				}
				continue
			}

			a := models.Approval{PhaseID: ph.ID, ApproverID: id, Round: ph.ApprovalRound, Status: models.ApprovalPending}
			aid, err := tx.CreateApproval(ctx, &a)
			if err != nil {
				if errors.Is(err, repository.ErrDuplicate) {
					return fmt.Errorf("approver %d on phase %d: %w", id, ph.ID, ErrDuplicateApprovalRequest)
				}
				return err
			}
			a.ID = aid
			created = append(created, a)
		}

		e.logger.Info("approvals requested",
			slog.Int64("phase_id", ph.ID),
			slog.Int("round", ph.ApprovalRound),
			slog.Int("created", len(created)),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// RecordDecision resolves one approval and, in the same transaction,
// recomputes the round's outcome. When the outcome leaves pending while the
// phase awaits approval the outcome handler is invoked.
func (e *ApprovalEngine) RecordDecision(ctx context.Context, actor Actor, approvalID int64, decision models.ApprovalStatus, comments string) (*DecisionResult, error) {
	if !decision.IsDecision() {
		return nil, validationErr("status", "must be one of approved, rejected, conditional")
	}

	var res DecisionResult
	err := e.store.InTx(ctx, func(tx repository.Store) error {
		a, err := tx.GetApproval(ctx, approvalID)
		if err != nil {
			return fmt.Errorf("load approval: %w", err)
		}
		if a == nil {
			return notFound("approval", approvalID)
		}
		if a.ApproverID != actor.UserID && !actor.IsAdmin() {
			return notAuthorized("user %d is not the approver of approval %d", actor.UserID, approvalID)
		}
		if a.Status != models.ApprovalPending {
			return fmt.Errorf("approval %d is %s: %w", approvalID, a.Status, ErrAlreadyResolved)
		}

		ph, err := tx.GetPhase(ctx, a.PhaseID)
		if err != nil {
			return fmt.Errorf("load phase: %w", err)
		}
		if ph == nil {
			return notFound("phase", a.PhaseID)
		}
		if a.Round != ph.ApprovalRound {
			return transitionErr(ph.Status, ph.Status, fmt.Sprintf("approval round %d superseded by round %d", a.Round, ph.ApprovalRound))
		}
		if ph.Status == models.PhaseInProgress || ph.Status == models.PhaseNotStarted {
			return transitionErr(ph.Status, ph.Status, "approval round closed")
		}

		at := nowMillis()
		ok, err := tx.ResolveApproval(ctx, a.ID, decision, comments, at)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("approval %d: %w", approvalID, ErrAlreadyResolved)
		}
		a.Status, a.Comments, a.ApprovedAt = decision, comments, &at

		if a.ApproverID != actor.UserID {
			e.logger.Warn("approval decided by admin override",
				slog.Int64("approval_id", a.ID),
				slog.Int64("approver_id", a.ApproverID),
				slog.Int64("actor_id", actor.UserID),
				slog.String("decision", string(decision)),
			)
		}

		rows, err := tx.ListApprovalsByPhase(ctx, ph.ID, ph.ApprovalRound)
		if err != nil {
			return fmt.Errorf("list approvals: %w", err)
		}
		outcome := ComputeOutcome(approvalStatuses(rows), e.policy)

		if outcome != OutcomePending && ph.Status == models.PhasePendingApproval && e.handler != nil {
			ev := PhaseOutcomeDetermined{PhaseID: ph.ID, Round: ph.ApprovalRound, Outcome: outcome, ActorID: actor.UserID}
			if err := e.handler.HandleOutcome(ctx, tx, ev); err != nil {
				return fmt.Errorf("apply outcome: %w", err)
			}
			if ph, err = tx.GetPhase(ctx, ph.ID); err != nil {
				return fmt.Errorf("reload phase: %w", err)
			}
		}

		res = DecisionResult{Approval: *a, Outcome: outcome, Phase: *ph}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// ComputeOutcome aggregates the decisions of the phase's current round. A
// round closed by sending the phase back to in_progress reports pending.
func (e *ApprovalEngine) ComputeOutcome(ctx context.Context, phaseID int64) (Outcome, error) {
	ph, err := e.store.GetPhase(ctx, phaseID)
	if err != nil {
		return "", fmt.Errorf("load phase: %w", err)
	}
	if ph == nil {
		return "", notFound("phase", phaseID)
	}
	switch {
	case ph.ApprovalRound == 0:
		return OutcomePending, nil
	case ph.Status != models.PhasePendingApproval && ph.Status != models.PhaseApproved && ph.Status != models.PhaseRejected:
		return OutcomePending, nil
	}

	rows, err := e.store.ListApprovalsByPhase(ctx, ph.ID, ph.ApprovalRound)
	if err != nil {
		return "", fmt.Errorf("list approvals: %w", err)
	}
	return ComputeOutcome(approvalStatuses(rows), e.policy), nil
}

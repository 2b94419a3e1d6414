package workflow_test

import (
	"context"
	"errors"
	"testing"

	"github.com/garnizeh/taosdlc/internal/models"
	"github.com/garnizeh/taosdlc/internal/workflow"
	"github.com/garnizeh/taosdlc/pkg/repository"
)

func TestStateMachine_Standalone(t *testing.T) {
	f := newFixture(t, workflow.Options{})
	ctx := context.Background()
	m := workflow.NewStateMachine(nil, 0, nil, nil)
	if m.PhaseCount() != workflow.MinPhaseCount {
		t.Fatalf("expected default phase count, got %d", m.PhaseCount())
	}

	_, phases := f.project(t)
	id := phases[0].ID

	// an outcome for a phase that is not awaiting approval is refused
	err := m.HandleOutcome(ctx, f.repo, workflow.PhaseOutcomeDetermined{PhaseID: id, Round: 1, Outcome: workflow.OutcomeApproved})
	if !errors.Is(err, workflow.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	err = m.HandleOutcome(ctx, f.repo, workflow.PhaseOutcomeDetermined{PhaseID: id, Round: 1, Outcome: workflow.OutcomePending})
	if err == nil {
		t.Fatalf("expected error for pending outcome")
	}
}

type recordingHandler struct {
	events []workflow.PhaseOutcomeDetermined
}

func (h *recordingHandler) HandleOutcome(_ context.Context, _ repository.Store, ev workflow.PhaseOutcomeDetermined) error {
	h.events = append(h.events, ev)
	return nil
}

func TestApprovalEngine_EmitsOutcomeOnce(t *testing.T) {
	f := newFixture(t, workflow.Options{})
	ctx := context.Background()

	_, phases := f.project(t)
	res := f.submit(t, phases[0].ID, f.a.UserID, f.b.UserID)

	h := &recordingHandler{}
	e := workflow.NewApprovalEngine(f.repo, workflow.Policy{}, h, nil)
	if e.Policy().Aggregation != workflow.AggregationVeto {
		t.Fatalf("expected veto default, got %s", e.Policy().Aggregation)
	}

	if _, err := e.RecordDecision(ctx, f.a, approvalOf(t, res.Approvals, f.a.UserID).ID, models.ApprovalApproved, ""); err != nil {
		t.Fatalf("A: %v", err)
	}
	if len(h.events) != 0 {
		t.Fatalf("expected no event while pending, got %#v", h.events)
	}
	dec, err := e.RecordDecision(ctx, f.b, approvalOf(t, res.Approvals, f.b.UserID).ID, models.ApprovalRejected, "")
	if err != nil {
		t.Fatalf("B: %v", err)
	}
	if dec.Outcome != workflow.OutcomeRejected {
		t.Fatalf("expected rejected outcome, got %s", dec.Outcome)
	}
	if len(h.events) != 1 {
		t.Fatalf("expected one event, got %#v", h.events)
	}
	ev := h.events[0]
	if ev.PhaseID != phases[0].ID || ev.Round != 1 || ev.Outcome != workflow.OutcomeRejected || ev.ActorID != f.b.UserID {
		t.Fatalf("unexpected event: %#v", ev)
	}

	out, err := e.ComputeOutcome(ctx, phases[0].ID)
	if err != nil || out != workflow.OutcomeRejected {
		t.Fatalf("ComputeOutcome: %s, %v", out, err)
	}
	if out, err := e.ComputeOutcome(ctx, phases[1].ID); err != nil || out != workflow.OutcomePending {
		t.Fatalf("expected pending for unsubmitted phase, got %s, %v", out, err)
	}
}

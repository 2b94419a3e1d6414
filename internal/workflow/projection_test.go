package workflow_test

import (
	"testing"

	"github.com/garnizeh/taosdlc/internal/models"
	"github.com/garnizeh/taosdlc/internal/workflow"
)

func phasesWith(statuses ...models.PhaseStatus) []models.Phase {
	out := make([]models.Phase, len(statuses))
	for i, s := range statuses {
		out[i] = models.Phase{ID: int64(i + 1), PhaseNumber: i + 1, PhaseName: workflow.PhaseName(i + 1), Status: s}
	}
	return out
}

func TestProgress(t *testing.T) {
	tests := map[models.PhaseStatus]int{
		models.PhaseNotStarted:      0,
		models.PhaseInProgress:      50,
		models.PhasePendingApproval: 75,
		models.PhaseApproved:        100,
		models.PhaseRejected:        50,
	}
	for s, want := range tests {
		if got := workflow.Progress(s); got != want {
			t.Fatalf("Progress(%s) = %d, want %d", s, got, want)
		}
	}
}

func TestIsAccessible(t *testing.T) {
	phases := phasesWith(models.PhaseApproved, models.PhaseInProgress, models.PhaseNotStarted)

	tests := []struct {
		n    int
		want bool
	}{
		{1, true},
		{2, true},
		{3, false},
		{4, false},
	}
	for _, tt := range tests {
		if got := workflow.IsAccessible(phases, tt.n); got != tt.want {
			t.Fatalf("IsAccessible(%d) = %v, want %v", tt.n, got, tt.want)
		}
	}
}

func TestDerivedCurrentPhase(t *testing.T) {
	tests := []struct {
		name   string
		phases []models.Phase
		count  int
		want   int
	}{
		{"fresh project", phasesWith(models.PhaseNotStarted, models.PhaseNotStarted), 2, 1},
		{"first approved", phasesWith(models.PhaseApproved, models.PhaseInProgress), 2, 2},
		{"rejected does not advance", phasesWith(models.PhaseApproved, models.PhaseRejected, models.PhaseNotStarted), 3, 2},
		{"capped at count", phasesWith(models.PhaseApproved, models.PhaseApproved), 2, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := workflow.DerivedCurrentPhase(tt.phases, tt.count); got != tt.want {
				t.Fatalf("DerivedCurrentPhase = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestBuildOverview(t *testing.T) {
	phases := phasesWith(models.PhaseApproved, models.PhasePendingApproval, models.PhaseNotStarted, models.PhaseNotStarted, models.PhaseNotStarted, models.PhaseNotStarted)
	proj := models.Project{ID: 1, Name: "P", CurrentPhase: 2}

	ov := workflow.BuildOverview(proj, phases, 6)
	if len(ov.Phases) != 6 {
		t.Fatalf("expected 6 phase views, got %d", len(ov.Phases))
	}
	if ov.OverallProgress != (100+75)/6 {
		t.Fatalf("unexpected overall progress %d", ov.OverallProgress)
	}
	if !ov.Phases[1].Accessible || ov.Phases[2].Accessible {
		t.Fatalf("unexpected accessibility: %#v", ov.Phases)
	}
	if ov.Phases[1].Progress != 75 {
		t.Fatalf("unexpected phase progress %d", ov.Phases[1].Progress)
	}
	if !ov.Consistent || ov.DerivedCurrentPhase != 2 {
		t.Fatalf("expected consistent overview, got %#v", ov)
	}

	proj.CurrentPhase = 3
	if ov := workflow.BuildOverview(proj, phases, 6); ov.Consistent {
		t.Fatalf("expected drift to be reported")
	}
}

func TestPhaseName(t *testing.T) {
	if got := workflow.PhaseName(1); got != "Requirements" {
		t.Fatalf("PhaseName(1) = %q", got)
	}
	if got := workflow.PhaseName(7); got != "Operations" {
		t.Fatalf("PhaseName(7) = %q", got)
	}
	if got := workflow.PhaseName(9); got != "Phase 9" {
		t.Fatalf("PhaseName(9) = %q", got)
	}
}

package workflow

import "github.com/garnizeh/taosdlc/internal/models"

// Progress is the displayed completion percentage of a phase status.
func Progress(s models.PhaseStatus) int {
	switch s {
	case models.PhaseInProgress, models.PhaseRejected:
		return 50
	case models.PhasePendingApproval:
		return 75
	case models.PhaseApproved:
		return 100
	}
	return 0
}

// IsAccessible reports whether phase n may be worked on: phase 1 always is,
// any other phase once its predecessor is approved.
func IsAccessible(phases []models.Phase, n int) bool {
	if n == 1 {
		return true
	}
	for _, p := range phases {
		if p.PhaseNumber == n-1 {
			return p.Status == models.PhaseApproved
		}
	}
	return false
}

// DerivedCurrentPhase recomputes the current phase pointer from phase
// statuses: one past the highest approved phase, capped at phaseCount.
func DerivedCurrentPhase(phases []models.Phase, phaseCount int) int {
	highest := 0
	for _, p := range phases {
		if p.Status == models.PhaseApproved && p.PhaseNumber > highest {
			highest = p.PhaseNumber
		}
	}
	cur := highest + 1
	if phaseCount > 0 && cur > phaseCount {
		cur = phaseCount
	}
	return cur
}

// PhaseView is a phase decorated with its display facts.
type PhaseView struct {
	models.Phase
	Progress   int  `json:"progress"`
	Accessible bool `json:"accessible"`
}

// Overview is the read model of a project's lifecycle.
type Overview struct {
	Project             models.Project `json:"project"`
	Phases              []PhaseView    `json:"phases"`
	OverallProgress     int            `json:"overall_progress"`
	CurrentPhase        int            `json:"current_phase"`
	DerivedCurrentPhase int            `json:"derived_current_phase"`
	Consistent          bool           `json:"consistent"`
}

// BuildOverview derives the overview of proj from its phases. It does not
// touch the store.
func BuildOverview(proj models.Project, phases []models.Phase, phaseCount int) Overview {
	if phaseCount <= 0 {
		phaseCount = len(phases)
	}

	views := make([]PhaseView, 0, len(phases))
	total := 0
	for _, p := range phases {
		pr := Progress(p.Status)
		total += pr
		views = append(views, PhaseView{Phase: p, Progress: pr, Accessible: IsAccessible(phases, p.PhaseNumber)})
	}

	overall := 0
	if phaseCount > 0 {
		overall = total / phaseCount
	}
	derived := DerivedCurrentPhase(phases, phaseCount)

	return Overview{
		Project:             proj,
		Phases:              views,
		OverallProgress:     overall,
		CurrentPhase:        proj.CurrentPhase,
		DerivedCurrentPhase: derived,
		Consistent:          derived == proj.CurrentPhase,
	}
}

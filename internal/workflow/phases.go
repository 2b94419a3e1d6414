package workflow

import "fmt"

// Supported project lengths.
const (
	MinPhaseCount = 6
	MaxPhaseCount = 7
)

var phaseNames = [MaxPhaseCount]string{
	"Requirements",
	"Architecture & Design",
	"Backlog",
	"Development",
	"QA & Testing",
	"Deployment",
	"Operations",
}

// PhaseName returns the canonical name of phase n (1-based).
func PhaseName(n int) string {
	if n < 1 || n > MaxPhaseCount {
		return fmt.Sprintf("Phase %d", n)
	}
	return phaseNames[n-1]
}

func validPhaseCount(n int) bool {
	return n == MinPhaseCount || n == MaxPhaseCount
}

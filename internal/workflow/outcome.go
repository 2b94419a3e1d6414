package workflow

import (
	"github.com/garnizeh/taosdlc/internal/config"
	"github.com/garnizeh/taosdlc/internal/models"
)

// Outcome is the aggregate verdict of one approval round.
type Outcome string

const (
	OutcomePending  Outcome = "pending"
	OutcomeApproved Outcome = "approved"
	OutcomeRejected Outcome = "rejected"
)

// Aggregation selects how individual decisions combine.
type Aggregation string

const (
	// AggregationVeto rejects on any rejection and approves only when every row approves.
	AggregationVeto Aggregation = "veto"
	// AggregationMajority decides once more than half of the rows agree.
	AggregationMajority Aggregation = "majority"
)

// Policy configures ComputeOutcome.
type Policy struct {
	Aggregation Aggregation
	// ConditionalApproves counts conditional decisions as approvals. When
	// false they keep the round open like a pending row.
	ConditionalApproves bool
}

// DefaultPolicy is veto aggregation with conditional decisions left pending.
func DefaultPolicy() Policy {
	return Policy{Aggregation: AggregationVeto}
}

// PolicyFromConfig maps the workflow section of the config onto a Policy.
func PolicyFromConfig(c config.WorkflowConfig) Policy {
	p := DefaultPolicy()
	if c.OutcomePolicy == config.OutcomePolicyMajority {
		p.Aggregation = AggregationMajority
	}
	p.ConditionalApproves = c.ConditionalPolicy == config.ConditionalApproved
	return p
}

// ComputeOutcome aggregates the statuses of one round. It depends only on the
// multiset of statuses, never on their order. An empty round is pending.
func ComputeOutcome(statuses []models.ApprovalStatus, p Policy) Outcome {
	if len(statuses) == 0 {
		return OutcomePending
	}

	var approved, rejected, open int
	for _, s := range statuses {
		switch s {
		case models.ApprovalApproved:
			approved++
		case models.ApprovalRejected:
			rejected++
		case models.ApprovalConditional:
			if p.ConditionalApproves {
				approved++
			} else {
				open++
			}
		default:
			open++
		}
	}

	total := len(statuses)
	switch p.Aggregation {
	case AggregationMajority:
		switch {
		case 2*rejected > total:
			return OutcomeRejected
		case 2*approved > total:
			return OutcomeApproved
		case open == 0:
			// fully decided tie
			return OutcomeRejected
		}
		return OutcomePending
	default:
		switch {
		case rejected > 0:
			return OutcomeRejected
		case approved == total:
			return OutcomeApproved
		}
		return OutcomePending
	}
}

func approvalStatuses(rows []models.Approval) []models.ApprovalStatus {
	out := make([]models.ApprovalStatus, 0, len(rows))
	for _, a := range rows {
		out = append(out, a.Status)
	}
	return out
}

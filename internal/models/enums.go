package models

import "fmt"

type PhaseStatus string

const (
	PhaseNotStarted      PhaseStatus = "not_started"
	PhaseInProgress      PhaseStatus = "in_progress"
	PhasePendingApproval PhaseStatus = "pending_approval"
	PhaseApproved        PhaseStatus = "approved"
	PhaseRejected        PhaseStatus = "rejected"
)

func (s PhaseStatus) Valid() bool {
	switch s {
	case PhaseNotStarted, PhaseInProgress, PhasePendingApproval, PhaseApproved, PhaseRejected:
		return true
	}
	return false
}

type ApprovalStatus string

const (
	ApprovalPending     ApprovalStatus = "pending"
	ApprovalApproved    ApprovalStatus = "approved"
	ApprovalRejected    ApprovalStatus = "rejected"
	ApprovalConditional ApprovalStatus = "conditional"
)

// IsDecision reports whether s is a value an approver may resolve a row to.
func (s ApprovalStatus) IsDecision() bool {
	return s == ApprovalApproved || s == ApprovalRejected || s == ApprovalConditional
}

type ProjectStatus string

const (
	ProjectActive    ProjectStatus = "active"
	ProjectCompleted ProjectStatus = "completed"
)

// UserRole is the job function of a user across the organisation.
type UserRole string

const (
	RoleAdmin        UserRole = "admin"
	RoleProductOwner UserRole = "product_owner"
	RoleTechLead     UserRole = "tech_lead"
	RoleArchitect    UserRole = "architect"
	RoleDeveloper    UserRole = "developer"
	RoleQAEngineer   UserRole = "qa_engineer"
	RoleDevOps       UserRole = "devops"
	RoleStakeholder  UserRole = "stakeholder"
)

var userRoles = map[UserRole]struct{}{
	RoleAdmin: {}, RoleProductOwner: {}, RoleTechLead: {}, RoleArchitect: {},
	RoleDeveloper: {}, RoleQAEngineer: {}, RoleDevOps: {}, RoleStakeholder: {},
}

// ParseUserRole validates a role label. Empty maps to RoleStakeholder.
func ParseUserRole(s string) (UserRole, error) {
	if s == "" {
		return RoleStakeholder, nil
	}
	r := UserRole(s)
	if _, ok := userRoles[r]; !ok {
		return "", fmt.Errorf("unknown user role %q", s)
	}
	return r, nil
}

// StakeholderRole is the capacity in which a user is assigned to a project.
type StakeholderRole string

const (
	StakeholderOwner       StakeholderRole = "owner"
	StakeholderApprover    StakeholderRole = "approver"
	StakeholderReviewer    StakeholderRole = "reviewer"
	StakeholderContributor StakeholderRole = "contributor"
)

func ParseStakeholderRole(s string) (StakeholderRole, error) {
	switch r := StakeholderRole(s); r {
	case StakeholderOwner, StakeholderApprover, StakeholderReviewer, StakeholderContributor:
		return r, nil
	}
	return "", fmt.Errorf("unknown stakeholder role %q", s)
}

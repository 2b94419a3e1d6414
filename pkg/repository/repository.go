package repository

import (
	"context"
	"errors"

	"github.com/garnizeh/taosdlc/internal/models"
)

// Repository interfaces for domain entities. These are the public contracts
// consumers should depend on; concrete implementations live under internal/.
//
// Getters return (nil, nil) when the row does not exist.

// ErrDuplicate wraps unique-constraint violations.
var ErrDuplicate = errors.New("duplicate record")

type UserRepo interface {
	CreateUser(ctx context.Context, u *models.User) (int64, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	SoftDeleteUser(ctx context.Context, id int64) error
}

type ProjectRepo interface {
	CreateProject(ctx context.Context, p *models.Project) (int64, error)
	GetProject(ctx context.Context, id int64) (*models.Project, error)
	ListProjects(ctx context.Context, limit, offset int) ([]models.Project, error)
	CountProjects(ctx context.Context) (int64, error)
	UpdateProjectProgress(ctx context.Context, id int64, currentPhase int, status models.ProjectStatus) error
	DeleteProject(ctx context.Context, id int64) error
}

type StakeholderRepo interface {
	AddStakeholder(ctx context.Context, s *models.ProjectStakeholder) (int64, error)
	RemoveStakeholder(ctx context.Context, projectID, userID int64, role models.StakeholderRole) (bool, error)
	ListStakeholders(ctx context.Context, projectID int64) ([]models.ProjectStakeholder, error)
	ListStakeholdersByRole(ctx context.Context, projectID int64, role models.StakeholderRole) ([]models.ProjectStakeholder, error)
	IsStakeholder(ctx context.Context, projectID, userID int64) (bool, error)
}

type PhaseRepo interface {
	CreatePhase(ctx context.Context, p *models.Phase) (int64, error)
	GetPhase(ctx context.Context, id int64) (*models.Phase, error)
	GetPhaseByNumber(ctx context.Context, projectID int64, phaseNumber int) (*models.Phase, error)
	ListPhasesByProject(ctx context.Context, projectID int64) ([]models.Phase, error)
	UpdatePhase(ctx context.Context, p *models.Phase) error
}

type ApprovalRepo interface {
	CreateApproval(ctx context.Context, a *models.Approval) (int64, error)
	GetApproval(ctx context.Context, id int64) (*models.Approval, error)
	// ListApprovalsByPhase lists approvals of a phase; round <= 0 returns all rounds.
	ListApprovalsByPhase(ctx context.Context, phaseID int64, round int) ([]models.Approval, error)
	// ListPendingByApprover returns pending approvals in the open round of their
	// phase. A round is closed once its phase is back in progress.
	ListPendingByApprover(ctx context.Context, approverID int64) ([]models.Approval, error)
	// ResolveApproval sets the decision only if the row is still pending and
	// reports whether it did.
	ResolveApproval(ctx context.Context, id int64, status models.ApprovalStatus, comments string, at int64) (bool, error)
}

type AIInteractionRepo interface {
	CreateAIInteraction(ctx context.Context, in *models.AIInteraction) (int64, error)
	GetAIInteraction(ctx context.Context, id int64) (*models.AIInteraction, error)
	ListAIInteractionsByPhase(ctx context.Context, phaseID int64) ([]models.AIInteraction, error)
	// MarkAIInteractionAccepted flips accepted once and reports whether it did.
	MarkAIInteractionAccepted(ctx context.Context, id int64) (bool, error)
}

type TransitionRepo interface {
	CreateTransition(ctx context.Context, t *models.PhaseTransition) (int64, error)
	ListTransitionsByPhase(ctx context.Context, phaseID int64) ([]models.PhaseTransition, error)
}

type SchemaRepo interface {
	UpsertPhaseSchema(ctx context.Context, phaseNumber int, description, schemaJSON string) (int64, error)
	GetPhaseSchema(ctx context.Context, phaseNumber int) (*models.PhaseSchema, error)
	ListPhaseSchemas(ctx context.Context) ([]models.PhaseSchema, error)
	DeletePhaseSchema(ctx context.Context, phaseNumber int) error
}

type JobRepo interface {
	Enqueue(ctx context.Context, j *models.BackgroundJob) (int64, error)
	FetchNext(ctx context.Context) (*models.BackgroundJob, error)
	UpdateJob(ctx context.Context, j *models.BackgroundJob) error
	MoveToDeadLetter(ctx context.Context, j *models.BackgroundJob) error
}

// Store aggregates the workflow repositories and runs compound operations atomically.
type Store interface {
	UserRepo
	ProjectRepo
	StakeholderRepo
	PhaseRepo
	ApprovalRepo
	AIInteractionRepo
	TransitionRepo

	// InTx runs fn with a Store bound to a single transaction. Nested calls
	// reuse the outer transaction.
	InTx(ctx context.Context, fn func(tx Store) error) error
}

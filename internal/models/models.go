package models

import (
	"encoding/json"
	"time"
)

// Timestamps are unix milliseconds (UTC).

type User struct {
	ID             int64    `json:"id" db:"id"`
	Email          string   `json:"email" db:"email" validate:"required,email"`
	Username       string   `json:"username" db:"username" validate:"required"`
	FullName       string   `json:"full_name" db:"full_name"`
	Role           UserRole `json:"role" db:"role"`
	HashedPassword string   `json:"-" db:"hashed_password"`
	Created        int64    `json:"created" db:"created"`
	Updated        int64    `json:"updated" db:"updated"`
	DeletedAt      *int64   `json:"deleted_at,omitempty" db:"deleted_at"`
}

type Project struct {
	ID           int64         `json:"id" db:"id"`
	Name         string        `json:"name" db:"name"`
	Description  string        `json:"description" db:"description"`
	CurrentPhase int           `json:"current_phase" db:"current_phase"`
	Status       ProjectStatus `json:"status" db:"status"`
	CreatedBy    int64         `json:"created_by" db:"created_by"`
	Created      int64         `json:"created" db:"created"`
	Updated      int64         `json:"updated" db:"updated"`
}

type ProjectStakeholder struct {
	ID        int64           `json:"id" db:"id"`
	ProjectID int64           `json:"project_id" db:"project_id"`
	UserID    int64           `json:"user_id" db:"user_id"`
	Role      StakeholderRole `json:"role" db:"role"`
	Created   int64           `json:"created" db:"created"`
}

type Phase struct {
	ID                int64           `json:"id" db:"id"`
	ProjectID         int64           `json:"project_id" db:"project_id"`
	PhaseNumber       int             `json:"phase_number" db:"phase_number"`
	PhaseName         string          `json:"phase_name" db:"phase_name"`
	Status            PhaseStatus     `json:"status" db:"status"`
	Data              json.RawMessage `json:"data" db:"data"`
	AIConfidenceScore *int            `json:"ai_confidence_score,omitempty" db:"ai_confidence_score"`
	ApprovalRound     int             `json:"approval_round" db:"approval_round"`
	StartDate         *int64          `json:"start_date,omitempty" db:"start_date"`
	EndDate           *int64          `json:"end_date,omitempty" db:"end_date"`
	EstimatedHours    *float64        `json:"estimated_hours,omitempty" db:"estimated_hours"`
	ActualHours       *float64        `json:"actual_hours,omitempty" db:"actual_hours"`
	Created           int64           `json:"created" db:"created"`
	Updated           int64           `json:"updated" db:"updated"`
}

type Approval struct {
	ID         int64          `json:"id" db:"id"`
	PhaseID    int64          `json:"phase_id" db:"phase_id"`
	ApproverID int64          `json:"approver_id" db:"approver_id"`
	Round      int            `json:"round" db:"round"`
	Status     ApprovalStatus `json:"status" db:"status"`
	Comments   string         `json:"comments" db:"comments"`
	ApprovedAt *int64         `json:"approved_at,omitempty" db:"approved_at"`
	Created    int64          `json:"created" db:"created"`
}

type AIInteraction struct {
	ID              int64  `json:"id" db:"id"`
	ProjectID       int64  `json:"project_id" db:"project_id"`
	PhaseID         *int64 `json:"phase_id,omitempty" db:"phase_id"`
	UserID          *int64 `json:"user_id,omitempty" db:"user_id"`
	UserQuery       string `json:"user_query" db:"user_query"`
	AIResponse      string `json:"ai_response" db:"ai_response"`
	ConfidenceScore int    `json:"confidence_score" db:"confidence_score"`
	Accepted        bool   `json:"accepted" db:"accepted"`
	Created         int64  `json:"created" db:"created"`
}

// PhaseTransition is an append-only audit record of a phase status change.
type PhaseTransition struct {
	ID      int64       `json:"id" db:"id"`
	PhaseID int64       `json:"phase_id" db:"phase_id"`
	From    PhaseStatus `json:"from" db:"from_status"`
	To      PhaseStatus `json:"to" db:"to_status"`
	ActorID *int64      `json:"actor_id,omitempty" db:"actor_id"`
	Reason  string      `json:"reason" db:"reason"`
	Created int64       `json:"created" db:"created"`
}

// PhaseSchema is a JSON schema the content of a phase must satisfy before submission.
type PhaseSchema struct {
	ID          int64  `json:"id" db:"id"`
	PhaseNumber int    `json:"phase_number" db:"phase_number"`
	Description string `json:"description,omitempty" db:"description"`
	SchemaJSON  string `json:"schema_json" db:"schema_json"`
	Created     int64  `json:"created" db:"created"`
	Updated     int64  `json:"updated" db:"updated"`
}

type BackgroundJob struct {
	ID          int64           `json:"id"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	Status      string          `json:"status"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	Priority    int             `json:"priority"`
	ScheduledAt time.Time       `json:"scheduled_at"`
	NextTryAt   *time.Time      `json:"next_try_at,omitempty"`
	LastError   string          `json:"last_error,omitempty"`
	Created     time.Time       `json:"created"`
	Updated     time.Time       `json:"updated"`
}

package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/garnizeh/taosdlc/internal/ai"
	"github.com/garnizeh/taosdlc/internal/models"
	"github.com/garnizeh/taosdlc/internal/workflow"
)

// TypeGeneratePhase drafts phase content with the AI engine.
const TypeGeneratePhase = "ai.generate_phase"

// GeneratePayload is the payload of a TypeGeneratePhase job.
type GeneratePayload struct {
	PhaseID int64           `json:"phase_id"`
	Prompt  string          `json:"prompt"`
	UserID  int64           `json:"user_id"`
	Role    models.UserRole `json:"role"`
}

// Generator drafts phase content.
type Generator interface {
	GeneratePhase(ctx context.Context, req ai.PhaseRequest) (*ai.Suggestion, error)
}

// PhaseService is the part of the workflow service the generate job uses.
type PhaseService interface {
	GetPhase(ctx context.Context, id int64) (*models.Phase, error)
	GetProject(ctx context.Context, id int64) (*models.Project, error)
	ListPhases(ctx context.Context, projectID int64) ([]models.Phase, error)
	RecordAIInteraction(ctx context.Context, actor workflow.Actor, in models.AIInteraction) (*models.AIInteraction, error)
}

var _ PhaseService = (*workflow.Service)(nil)

// GeneratePhaseHandler returns the handler of TypeGeneratePhase jobs. The
// draft is appended as an AI interaction the user may later accept.
func GeneratePhaseHandler(svc PhaseService, gen Generator, logger *slog.Logger) Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, j *models.BackgroundJob) error {
		var pl GeneratePayload
		if err := json.Unmarshal(j.Payload, &pl); err != nil {
			return Permanent(fmt.Errorf("decode payload: %w", err))
		}
		if pl.PhaseID <= 0 || pl.Prompt == "" {
			return Permanent(errors.New("payload needs phase_id and prompt"))
		}

		ph, err := svc.GetPhase(ctx, pl.PhaseID)
		if err != nil {
			return classify(err)
		}
		proj, err := svc.GetProject(ctx, ph.ProjectID)
		if err != nil {
			return classify(err)
		}
		phases, err := svc.ListPhases(ctx, proj.ID)
		if err != nil {
			return classify(err)
		}

		req := ai.PhaseRequest{
			ProjectName:        proj.Name,
			ProjectDescription: proj.Description,
			PhaseNumber:        ph.PhaseNumber,
			PhaseName:          ph.PhaseName,
			Request:            pl.Prompt,
		}
		if workflow.HasContent(ph.Data) {
			req.CurrentContent = string(ph.Data)
		}
		for _, p := range phases {
			if p.PhaseNumber < ph.PhaseNumber && p.Status == models.PhaseApproved && workflow.HasContent(p.Data) {
				req.PriorPhases = append(req.PriorPhases, ai.PriorPhase{Number: p.PhaseNumber, Name: p.PhaseName, Content: string(p.Data)})
			}
		}

		s, err := gen.GeneratePhase(ctx, req)
		if err != nil {
			return err
		}

		actor := workflow.Actor{UserID: pl.UserID, Role: pl.Role}
		rec, err := svc.RecordAIInteraction(ctx, actor, models.AIInteraction{
			ProjectID:       proj.ID,
			PhaseID:         &ph.ID,
			UserQuery:       pl.Prompt,
			AIResponse:      string(s.Content),
			ConfidenceScore: s.Confidence,
		})
		if err != nil {
			return classify(err)
		}

		logger.Info("phase draft recorded", "job_id", j.ID, "phase_id", ph.ID, "interaction_id", rec.ID, "confidence", rec.ConfidenceScore)
		return nil
	}
}

// classify marks domain errors as permanent; storage errors stay retryable.
func classify(err error) error {
	switch {
	case errors.Is(err, workflow.ErrNotFound),
		errors.Is(err, workflow.ErrNotAuthorized),
		errors.Is(err, workflow.ErrValidation):
		return Permanent(err)
	}
	return err
}

package handlers

import (
	"context"

	"eyetrack-go/internal/models"
	"eyetrack-go/internal/repository"
)

// ResultsStore is the read side of the stored sessions.
type ResultsStore interface {
	ListSessions(ctx context.Context, limit int) ([]models.Session, error)
	GetSession(ctx context.Context, id string) (*models.Session, error)
	GetSessionResults(ctx context.Context, id string) ([]models.StepResult, error)
	GetValidationAttempts(ctx context.Context, id string) ([]models.ValidationAttempt, error)
	GetPrecisionTimeline(ctx context.Context, id string) ([]repository.PrecisionDataPoint, error)
	GetTrialOutcomes(ctx context.Context, id string) ([]repository.TrialOutcomeDataPoint, error)
}

// RepositoryStore reads through the repository package.
type RepositoryStore struct{}

func (RepositoryStore) ListSessions(ctx context.Context, limit int) ([]models.Session, error) {
	return repository.ListSessions(ctx, limit)
}

func (RepositoryStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	return repository.GetSession(ctx, id)
}

func (RepositoryStore) GetSessionResults(ctx context.Context, id string) ([]models.StepResult, error) {
	return repository.GetSessionResults(ctx, id)
}

func (RepositoryStore) GetValidationAttempts(ctx context.Context, id string) ([]models.ValidationAttempt, error) {
	return repository.GetValidationAttempts(ctx, id)
}

func (RepositoryStore) GetPrecisionTimeline(ctx context.Context, id string) ([]repository.PrecisionDataPoint, error) {
	return repository.GetPrecisionTimeline(ctx, id)
}

func (RepositoryStore) GetTrialOutcomes(ctx context.Context, id string) ([]repository.TrialOutcomeDataPoint, error) {
	return repository.GetTrialOutcomes(ctx, id)
}

package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/cozy-creator/vision-ai/internal/db/models"
	"github.com/cozy-creator/vision-ai/internal/types"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type IInferenceRepository interface {
	Repository[models.Inference]
	List(ctx context.Context, pipeline types.PipelineID, limit int) ([]models.Inference, error)
	Record(ctx context.Context, req types.InferenceRequest, result types.InferenceResult, took time.Duration) error
}

type InferenceRepository struct {
	db *bun.DB
}

func NewInferenceRepository(db *bun.DB) IInferenceRepository {
	return &InferenceRepository{db: db}
}

func (r *InferenceRepository) Create(ctx context.Context, inference *models.Inference) (*models.Inference, error) {
	if inference == nil {
		return nil, fmt.Errorf("inference model is nil")
	}
	if inference.ID == uuid.Nil {
		inference.ID = uuid.New()
	}
	if inference.CreatedAt.IsZero() {
		inference.CreatedAt = time.Now().UTC()
	}

	if _, err := r.db.NewInsert().Model(inference).Exec(ctx); err != nil {
		return nil, err
	}

	return inference, nil
}

func (r *InferenceRepository) GetByID(ctx context.Context, id string) (*models.Inference, error) {
	var inference models.Inference
	if err := r.db.NewSelect().Model(&inference).Where("id = ?", id).Scan(ctx); err != nil {
		return nil, err
	}

	return &inference, nil
}

func (r *InferenceRepository) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.NewDelete().Model((*models.Inference)(nil)).Where("id = ?", id).Exec(ctx)
	return err
}

// List returns the most recent inferences first. An empty pipeline lists all of them.
func (r *InferenceRepository) List(ctx context.Context, pipeline types.PipelineID, limit int) ([]models.Inference, error) {
	var inferences []models.Inference
	q := r.db.NewSelect().Model(&inferences).Order("created_at DESC")
	if pipeline != "" {
		q = q.Where("pipeline = ?", string(pipeline))
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	return inferences, nil
}

func (r *InferenceRepository) Record(ctx context.Context, req types.InferenceRequest, result types.InferenceResult, took time.Duration) error {
	_, err := r.Create(ctx, &models.Inference{
		Token:      result.Token,
		Pipeline:   string(result.Pipeline),
		ImagePath:  req.ImagePath,
		OK:         result.OK,
		Message:    result.Message,
		DurationMs: took.Milliseconds(),
	})
	return err
}

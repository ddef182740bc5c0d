package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/openfiscal/broker-backend/internal/pkg/logger"
	"github.com/openfiscal/broker-backend/internal/types"
)

type JobEventRepo interface {
	Append(ctx context.Context, tx *gorm.DB, event *types.JobEvent) error
	ListByJob(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) ([]*types.JobEvent, error)
	ListBySubmission(ctx context.Context, tx *gorm.DB, submissionID uuid.UUID) ([]*types.JobEvent, error)
}

type jobEventRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewJobEventRepo(db *gorm.DB, baseLog *logger.Logger) JobEventRepo {
	return &jobEventRepo{
		db:  db,
		log: baseLog.With("repo", "JobEventRepo"),
	}
}

func (r *jobEventRepo) Append(ctx context.Context, tx *gorm.DB, event *types.JobEvent) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	return transaction.WithContext(ctx).Create(event).Error
}

func (r *jobEventRepo) ListByJob(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) ([]*types.JobEvent, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.JobEvent
	if err := transaction.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *jobEventRepo) ListBySubmission(ctx context.Context, tx *gorm.DB, submissionID uuid.UUID) ([]*types.JobEvent, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.JobEvent
	if err := transaction.WithContext(ctx).
		Where("submission_id = ?", submissionID).
		Order("id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

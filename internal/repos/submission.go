package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/openfiscal/broker-backend/internal/pkg/apperr"
	"github.com/openfiscal/broker-backend/internal/pkg/logger"
	"github.com/openfiscal/broker-backend/internal/types"
)

type SubmissionRepo interface {
	Create(ctx context.Context, tx *gorm.DB, sub *types.Submission) (*types.Submission, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Submission, error)
	SetAgencyCode(ctx context.Context, tx *gorm.DB, id uuid.UUID, agencyCode string) error
}

type submissionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSubmissionRepo(db *gorm.DB, baseLog *logger.Logger) SubmissionRepo {
	return &submissionRepo{
		db:  db,
		log: baseLog.With("repo", "SubmissionRepo"),
	}
}

func (r *submissionRepo) Create(ctx context.Context, tx *gorm.DB, sub *types.Submission) (*types.Submission, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	if err := transaction.WithContext(ctx).Create(sub).Error; err != nil {
		return nil, err
	}
	return sub, nil
}

func (r *submissionRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Submission, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var sub types.Submission
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *submissionRepo) SetAgencyCode(ctx context.Context, tx *gorm.DB, id uuid.UUID, agencyCode string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Model(&types.Submission{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"agency_code": agencyCode,
			"updated_at":  time.Now(),
		}).Error
}

package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/openfiscal/broker-backend/internal/pkg/logger"
	"github.com/openfiscal/broker-backend/internal/types"
)

type ErrorRecordRepo interface {
	// Record inserts one validation failure, or bumps the occurrence count
	// when the same (job, field, error type, rule) combination already
	// exists. The first offending row never changes after insert.
	Record(ctx context.Context, tx *gorm.DB, jobID uuid.UUID, filename, fieldName string, errorType types.ErrorType, row *int, rule string) error
	CountByJob(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) (int64, error)
	ListByJob(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) ([]*types.ErrorRecord, error)
	// ListBySubmissionAndFileType returns records in row-encounter order for
	// every job of the given file type in the submission.
	ListBySubmissionAndFileType(ctx context.Context, tx *gorm.DB, submissionID uuid.UUID, fileType types.FileType) ([]*types.ErrorRecord, error)
	ListBySubmission(ctx context.Context, tx *gorm.DB, submissionID uuid.UUID) ([]*types.ErrorRecord, error)
}

type errorRecordRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewErrorRecordRepo(db *gorm.DB, baseLog *logger.Logger) ErrorRecordRepo {
	return &errorRecordRepo{
		db:  db,
		log: baseLog.With("repo", "ErrorRecordRepo"),
	}
}

func (r *errorRecordRepo) Record(ctx context.Context, tx *gorm.DB, jobID uuid.UUID, filename, fieldName string, errorType types.ErrorType, row *int, rule string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	now := time.Now()
	rec := &types.ErrorRecord{
		JobID:       jobID,
		Filename:    filename,
		FieldName:   fieldName,
		ErrorType:   errorType,
		RuleFailed:  rule,
		Occurrences: 1,
		FirstRow:    row,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "job_id"},
				{Name: "field_name"},
				{Name: "error_type"},
				{Name: "rule_failed"},
			},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"occurrences": gorm.Expr("occurrences + 1"),
				"updated_at":  now,
			}),
		}).
		Create(rec).Error
}

func (r *errorRecordRepo) CountByJob(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var total int64
	err := transaction.WithContext(ctx).
		Model(&types.ErrorRecord{}).
		Where("job_id = ?", jobID).
		Select("COALESCE(SUM(occurrences), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (r *errorRecordRepo) ListByJob(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) ([]*types.ErrorRecord, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.ErrorRecord
	if err := transaction.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *errorRecordRepo) ListBySubmissionAndFileType(ctx context.Context, tx *gorm.DB, submissionID uuid.UUID, fileType types.FileType) ([]*types.ErrorRecord, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.ErrorRecord
	err := transaction.WithContext(ctx).
		Joins("JOIN job ON job.id = error_record.job_id").
		Where("job.submission_id = ? AND job.file_type = ?", submissionID, fileType).
		Order("error_record.id ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *errorRecordRepo) ListBySubmission(ctx context.Context, tx *gorm.DB, submissionID uuid.UUID) ([]*types.ErrorRecord, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.ErrorRecord
	err := transaction.WithContext(ctx).
		Joins("JOIN job ON job.id = error_record.job_id").
		Where("job.submission_id = ?", submissionID).
		Order("error_record.id ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

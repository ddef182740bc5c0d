package repos

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/openfiscal/broker-backend/internal/pkg/logger"
	"github.com/openfiscal/broker-backend/internal/types"
)

type FileStatusRepo interface {
	// Upsert replaces the file status row for a job wholesale. A
	// re-validation overwrites prior header lists, it never merges them.
	Upsert(ctx context.Context, tx *gorm.DB, jobID uuid.UUID, filename string, status types.FileStatusValue, missingHeaders, duplicatedHeaders []string) error
	// GetByJobID returns (nil, nil) when no row exists for the job.
	GetByJobID(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) (*types.FileStatus, error)
	ListByJobIDs(ctx context.Context, tx *gorm.DB, jobIDs []uuid.UUID) ([]*types.FileStatus, error)
}

type fileStatusRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewFileStatusRepo(db *gorm.DB, baseLog *logger.Logger) FileStatusRepo {
	return &fileStatusRepo{
		db:  db,
		log: baseLog.With("repo", "FileStatusRepo"),
	}
}

func (r *fileStatusRepo) Upsert(ctx context.Context, tx *gorm.DB, jobID uuid.UUID, filename string, status types.FileStatusValue, missingHeaders, duplicatedHeaders []string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	missing, err := encodeHeaders(missingHeaders)
	if err != nil {
		return err
	}
	duplicated, err := encodeHeaders(duplicatedHeaders)
	if err != nil {
		return err
	}
	now := time.Now()
	row := &types.FileStatus{
		JobID:             jobID,
		Filename:          filename,
		Status:            status,
		MissingHeaders:    missing,
		DuplicatedHeaders: duplicated,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "job_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"filename", "status", "missing_headers", "duplicated_headers", "updated_at"}),
		}).
		Create(row).Error
}

func (r *fileStatusRepo) GetByJobID(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) (*types.FileStatus, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var row types.FileStatus
	err := transaction.WithContext(ctx).
		Where("job_id = ?", jobID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *fileStatusRepo) ListByJobIDs(ctx context.Context, tx *gorm.DB, jobIDs []uuid.UUID) ([]*types.FileStatus, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.FileStatus
	if len(jobIDs) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(ctx).
		Where("job_id IN ?", jobIDs).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func encodeHeaders(headers []string) (datatypes.JSON, error) {
	if headers == nil {
		headers = []string{}
	}
	b, err := json.Marshal(headers)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}

// DecodeHeaders unpacks a stored header list; a nil column reads as empty.
func DecodeHeaders(raw datatypes.JSON) []string {
	if len(raw) == 0 {
		return []string{}
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return []string{}
	}
	return out
}

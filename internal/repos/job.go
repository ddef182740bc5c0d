package repos

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/openfiscal/broker-backend/internal/pkg/apperr"
	"github.com/openfiscal/broker-backend/internal/pkg/logger"
	"github.com/openfiscal/broker-backend/internal/types"
)

type JobRepo interface {
	Create(ctx context.Context, tx *gorm.DB, jobs []*types.Job) ([]*types.Job, error)
	CreateDependencies(ctx context.Context, tx *gorm.DB, jobID uuid.UUID, prerequisiteIDs []uuid.UUID) error
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Job, error)
	ListBySubmission(ctx context.Context, tx *gorm.DB, submissionID uuid.UUID) ([]*types.Job, error)
	GetOriginalFilename(ctx context.Context, tx *gorm.DB, id uuid.UUID) (string, error)
	// UpdateStatusCAS moves a job from one status to another with a single
	// conditional update. It reports false when the expected prior status no
	// longer matched, without deciding why; that is the caller's call to make.
	UpdateStatusCAS(ctx context.Context, tx *gorm.DB, id uuid.UUID, from, to types.JobStatus) (bool, error)
	ListPrerequisites(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) ([]*types.Job, error)
	ListDependents(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) ([]*types.Job, error)
}

type jobRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewJobRepo(db *gorm.DB, baseLog *logger.Logger) JobRepo {
	return &jobRepo{
		db:  db,
		log: baseLog.With("repo", "JobRepo"),
	}
}

func (r *jobRepo) Create(ctx context.Context, tx *gorm.DB, jobs []*types.Job) ([]*types.Job, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(jobs) == 0 {
		return []*types.Job{}, nil
	}
	for _, j := range jobs {
		if j.ID == uuid.Nil {
			j.ID = uuid.New()
		}
	}
	if err := transaction.WithContext(ctx).Create(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *jobRepo) CreateDependencies(ctx context.Context, tx *gorm.DB, jobID uuid.UUID, prerequisiteIDs []uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(prerequisiteIDs) == 0 {
		return nil
	}
	job, err := r.GetByID(ctx, transaction, jobID)
	if err != nil {
		return err
	}
	var sameSubmission int64
	if err := transaction.WithContext(ctx).
		Model(&types.Job{}).
		Where("id IN ? AND submission_id = ?", prerequisiteIDs, job.SubmissionID).
		Count(&sameSubmission).Error; err != nil {
		return err
	}
	if sameSubmission != int64(len(prerequisiteIDs)) {
		return fmt.Errorf("%w: prerequisite outside submission %s", apperr.ErrInvalidDependency, job.SubmissionID)
	}
	edges := make([]*types.JobDependency, 0, len(prerequisiteIDs))
	for _, prereqID := range prerequisiteIDs {
		edges = append(edges, &types.JobDependency{JobID: jobID, PrerequisiteID: prereqID})
	}
	return transaction.WithContext(ctx).Create(&edges).Error
}

func (r *jobRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Job, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var job types.Job
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *jobRepo) ListBySubmission(ctx context.Context, tx *gorm.DB, submissionID uuid.UUID) ([]*types.Job, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Job
	if err := transaction.WithContext(ctx).
		Where("submission_id = ?", submissionID).
		Order("created_at ASC, id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *jobRepo) GetOriginalFilename(ctx context.Context, tx *gorm.DB, id uuid.UUID) (string, error) {
	job, err := r.GetByID(ctx, tx, id)
	if err != nil {
		return "", err
	}
	return job.OriginalFilename, nil
}

func (r *jobRepo) UpdateStatusCAS(ctx context.Context, tx *gorm.DB, id uuid.UUID, from, to types.JobStatus) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(ctx).
		Model(&types.Job{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{
			"status":     to,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *jobRepo) ListPrerequisites(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) ([]*types.Job, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Job
	err := transaction.WithContext(ctx).
		Joins("JOIN job_dependency ON job_dependency.prerequisite_id = job.id").
		Where("job_dependency.job_id = ?", jobID).
		Order("job.created_at ASC, job.id ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *jobRepo) ListDependents(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) ([]*types.Job, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Job
	err := transaction.WithContext(ctx).
		Joins("JOIN job_dependency ON job_dependency.job_id = job.id").
		Where("job_dependency.prerequisite_id = ?", jobID).
		Order("job.created_at ASC, job.id ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

package services

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/openfiscal/broker-backend/internal/pkg/dbctx"
	"github.com/openfiscal/broker-backend/internal/pkg/logger"
	"github.com/openfiscal/broker-backend/internal/repos"
	"github.com/openfiscal/broker-backend/internal/requestdata"
	"github.com/openfiscal/broker-backend/internal/types"
)

type SubmitFilesRequest struct {
	SubmissionID   *uuid.UUID
	FilesByType    map[types.FileType]string
	ReportingStart *time.Time
	ReportingEnd   *time.Time
}

type SubmittedFile struct {
	JobID        uuid.UUID `json:"job_id"`
	UploadKey    string    `json:"upload_key"`
	Filename     string    `json:"filename"`
	ValidationID uuid.UUID `json:"validation_job_id"`
}

type SubmitFilesResponse struct {
	SubmissionID uuid.UUID                        `json:"submission_id"`
	Files        map[types.FileType]SubmittedFile `json:"files"`
	CrossFileJob uuid.UUID                        `json:"cross_file_job_id"`
}

// SubmissionService opens a submission and lays down its job graph in one
// transaction: an upload job per file, a record-validation job depending on
// each upload, and one cross-file validation job depending on every
// record-validation job.
type SubmissionService interface {
	SubmitFiles(dbc dbctx.Context, actor *requestdata.Actor, req SubmitFilesRequest) (*SubmitFilesResponse, error)
	GetSubmission(dbc dbctx.Context, submissionID uuid.UUID) (*types.Submission, error)
}

type submissionService struct {
	db          *gorm.DB
	log         *logger.Logger
	submissions repos.SubmissionRepo
	jobs        repos.JobRepo
	events      repos.JobEventRepo
	handles     UploadHandleIssuer
}

func NewSubmissionService(
	db *gorm.DB,
	baseLog *logger.Logger,
	submissions repos.SubmissionRepo,
	jobs repos.JobRepo,
	events repos.JobEventRepo,
	handles UploadHandleIssuer,
) SubmissionService {
	return &submissionService{
		db:          db,
		log:         baseLog.With("service", "SubmissionService"),
		submissions: submissions,
		jobs:        jobs,
		events:      events,
		handles:     handles,
	}
}

func (s *submissionService) SubmitFiles(dbc dbctx.Context, actor *requestdata.Actor, req SubmitFilesRequest) (*SubmitFilesResponse, error) {
	if actor == nil || actor.UserID == uuid.Nil {
		return nil, fmt.Errorf("missing actor")
	}
	if len(req.FilesByType) == 0 {
		return nil, fmt.Errorf("no files submitted")
	}

	var resp *SubmitFilesResponse
	run := func(tx *gorm.DB) error {
		sub, err := s.resolveSubmission(dbc, tx, actor, req)
		if err != nil {
			return err
		}

		files := make(map[types.FileType]SubmittedFile, len(req.FilesByType))
		validationJobs := make([]uuid.UUID, 0, len(req.FilesByType))

		// Catalog order keeps job creation deterministic across requests.
		for _, fileType := range types.FileTypes {
			filename, ok := req.FilesByType[fileType]
			if !ok {
				continue
			}
			uploadKey, err := s.handles.Issue(sub.ID, fileType, filename)
			if err != nil {
				return err
			}
			uploadJob := &types.Job{
				SubmissionID:     sub.ID,
				FileType:         fileType,
				JobType:          types.JobTypeFileUpload,
				Status:           types.JobStatusUploading,
				OriginalFilename: filename,
				UploadKey:        uploadKey,
			}
			validationJob := &types.Job{
				SubmissionID:     sub.ID,
				FileType:         fileType,
				JobType:          types.JobTypeCSVRecordValidation,
				Status:           types.JobStatusCreated,
				OriginalFilename: filename,
			}
			if _, err := s.jobs.Create(dbc.Ctx, tx, []*types.Job{uploadJob, validationJob}); err != nil {
				return err
			}
			if err := s.jobs.CreateDependencies(dbc.Ctx, tx, validationJob.ID, []uuid.UUID{uploadJob.ID}); err != nil {
				return err
			}
			files[fileType] = SubmittedFile{
				JobID:        uploadJob.ID,
				UploadKey:    uploadKey,
				Filename:     filename,
				ValidationID: validationJob.ID,
			}
			validationJobs = append(validationJobs, validationJob.ID)
		}

		crossFileJob := &types.Job{
			SubmissionID: sub.ID,
			FileType:     types.FileTypeUnspecified,
			JobType:      types.JobTypeExternalValidation,
			Status:       types.JobStatusCreated,
		}
		if _, err := s.jobs.Create(dbc.Ctx, tx, []*types.Job{crossFileJob}); err != nil {
			return err
		}
		if err := s.jobs.CreateDependencies(dbc.Ctx, tx, crossFileJob.ID, validationJobs); err != nil {
			return err
		}

		resp = &SubmitFilesResponse{
			SubmissionID: sub.ID,
			Files:        files,
			CrossFileJob: crossFileJob.ID,
		}
		return nil
	}

	transaction := dbc.Tx
	var err error
	if transaction != nil {
		err = run(transaction)
	} else {
		err = s.db.WithContext(dbc.Ctx).Transaction(run)
	}
	if err != nil {
		return nil, err
	}
	s.log.Info("Submission opened", "submission_id", resp.SubmissionID, "file_count", len(resp.Files), "user_id", actor.UserID, "agency_code", actor.AgencyCode)
	return resp, nil
}

func (s *submissionService) resolveSubmission(dbc dbctx.Context, tx *gorm.DB, actor *requestdata.Actor, req SubmitFilesRequest) (*types.Submission, error) {
	if req.SubmissionID != nil {
		return s.submissions.GetByID(dbc.Ctx, tx, *req.SubmissionID)
	}
	sub := &types.Submission{
		UserID:         actor.UserID,
		AgencyCode:     actor.AgencyCode,
		ReportingStart: req.ReportingStart,
		ReportingEnd:   req.ReportingEnd,
	}
	return s.submissions.Create(dbc.Ctx, tx, sub)
}

func (s *submissionService) GetSubmission(dbc dbctx.Context, submissionID uuid.UUID) (*types.Submission, error) {
	return s.submissions.GetByID(dbc.Ctx, dbc.Tx, submissionID)
}

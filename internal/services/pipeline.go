package services

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/openfiscal/broker-backend/internal/pkg/apperr"
	"github.com/openfiscal/broker-backend/internal/pkg/dbctx"
	"github.com/openfiscal/broker-backend/internal/pkg/logger"
	"github.com/openfiscal/broker-backend/internal/repos"
	"github.com/openfiscal/broker-backend/internal/types"
)

// ValidationOutcome is the terminal report from the external rule evaluator
// for one file-producing job.
type ValidationOutcome struct {
	Filename          string
	FileStatus        types.FileStatusValue
	MissingHeaders    []string
	DuplicatedHeaders []string
}

// JobStatusView is one entry of the check-status snapshot.
type JobStatusView struct {
	JobStatus         string   `json:"job_status"`
	JobType           string   `json:"job_type"`
	FileType          string   `json:"file_type"`
	Filename          string   `json:"filename"`
	FileStatus        string   `json:"file_status"`
	MissingHeaders    []string `json:"missing_headers"`
	DuplicatedHeaders []string `json:"duplicated_headers"`
}

// PipelineService is the single writer of job status. Every transition is a
// compare-and-set against the status read at the top of the call; a stale
// read surfaces apperr.ErrConcurrentModification and the caller retries with
// fresh state.
type PipelineService interface {
	// IssueUpload marks an upload handle as handed out, created → uploading.
	IssueUpload(dbc dbctx.Context, jobID uuid.UUID) (*types.Job, error)
	// FinalizeUpload moves an upload job to upload_complete, gated by the
	// submission's agency code. Calling it on a finished job is a no-op.
	FinalizeUpload(dbc dbctx.Context, jobID uuid.UUID, actorAgency string) (*types.Job, error)
	// CompleteValidation records the evaluator's terminal outcome and moves
	// the job to validation_complete or validation_failed. Safe to receive
	// more than once for the same job.
	CompleteValidation(dbc dbctx.Context, jobID uuid.UUID, outcome ValidationOutcome) (*types.Job, error)
	// FailJob reports an explicit failure from the owning subsystem. The
	// failure status absorbs all later transition attempts.
	FailJob(dbc dbctx.Context, jobID uuid.UUID, failure types.JobStatus, reason string) (*types.Job, error)
	// CheckStatus is a read-only snapshot keyed by job id. It never blocks
	// and never mutates; it may trail an in-flight transition.
	CheckStatus(dbc dbctx.Context, submissionID uuid.UUID) (map[string]JobStatusView, error)
}

type pipelineService struct {
	db           *gorm.DB
	log          *logger.Logger
	jobs         repos.JobRepo
	submissions  repos.SubmissionRepo
	fileStatuses repos.FileStatusRepo
	errorRecords repos.ErrorRecordRepo
	events       repos.JobEventRepo
}

func NewPipelineService(
	db *gorm.DB,
	baseLog *logger.Logger,
	jobs repos.JobRepo,
	submissions repos.SubmissionRepo,
	fileStatuses repos.FileStatusRepo,
	errorRecords repos.ErrorRecordRepo,
	events repos.JobEventRepo,
) PipelineService {
	return &pipelineService{
		db:           db,
		log:          baseLog.With("service", "PipelineService"),
		jobs:         jobs,
		submissions:  submissions,
		fileStatuses: fileStatuses,
		errorRecords: errorRecords,
		events:       events,
	}
}

func (s *pipelineService) IssueUpload(dbc dbctx.Context, jobID uuid.UUID) (*types.Job, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = s.db
	}
	job, err := s.jobs.GetByID(dbc.Ctx, transaction, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status == types.JobStatusUploading {
		return job, nil
	}
	if job.Status != types.JobStatusCreated {
		return nil, apperr.IllegalTransition(string(job.Status), string(types.JobStatusUploading))
	}
	ok, err := s.jobs.UpdateStatusCAS(dbc.Ctx, transaction, job.ID, types.JobStatusCreated, types.JobStatusUploading)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: job %s left %q before upload issue", apperr.ErrConcurrentModification, job.ID, job.Status)
	}
	s.appendEvent(dbc, job, job.Status, types.JobStatusUploading, "", "upload handle issued")
	job.Status = types.JobStatusUploading
	return job, nil
}

func (s *pipelineService) FinalizeUpload(dbc dbctx.Context, jobID uuid.UUID, actorAgency string) (*types.Job, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = s.db
	}
	job, err := s.jobs.GetByID(dbc.Ctx, transaction, jobID)
	if err != nil {
		return nil, err
	}
	sub, err := s.submissions.GetByID(dbc.Ctx, transaction, job.SubmissionID)
	if err != nil {
		return nil, err
	}
	// Re-affiliating the submission's agency, done externally, can make a
	// rejected finalize succeed on retry.
	if sub.AgencyCode != actorAgency {
		return nil, apperr.AgencyMismatch(sub.AgencyCode, actorAgency)
	}

	switch job.Status {
	case types.JobStatusUploadComplete:
		// Re-delivered callback. The transition already happened, but a
		// crash between the transition and admission must be repairable,
		// so dependents are re-checked; admission is a compare-and-set
		// from created, so repeating it cannot double-admit.
		if err := s.advanceDependents(dbc, job); err != nil {
			return nil, err
		}
		return job, nil
	case types.JobStatusUploading:
		ok, err := s.jobs.UpdateStatusCAS(dbc.Ctx, transaction, job.ID, types.JobStatusUploading, types.JobStatusUploadComplete)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: job %s left %q during finalize", apperr.ErrConcurrentModification, job.ID, job.Status)
		}
		s.appendEvent(dbc, job, types.JobStatusUploading, types.JobStatusUploadComplete, actorAgency, "upload finalized")
		s.log.Info("Upload finalized", "job_id", job.ID, "submission_id", job.SubmissionID, "file_type", job.FileType)
		job.Status = types.JobStatusUploadComplete
		if err := s.advanceDependents(dbc, job); err != nil {
			return nil, err
		}
		return job, nil
	default:
		return nil, apperr.IllegalTransition(string(job.Status), string(types.JobStatusUploadComplete))
	}
}

func (s *pipelineService) CompleteValidation(dbc dbctx.Context, jobID uuid.UUID, outcome ValidationOutcome) (*types.Job, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = s.db
	}
	job, err := s.jobs.GetByID(dbc.Ctx, transaction, jobID)
	if err != nil {
		return nil, err
	}
	if job.JobType == types.JobTypeFileUpload {
		return nil, apperr.IllegalTransition(string(job.Status), string(types.JobStatusValidationComplete))
	}

	errCount, err := s.errorRecords.CountByJob(dbc.Ctx, transaction, job.ID)
	if err != nil {
		return nil, err
	}
	target := types.JobStatusValidationComplete
	if outcome.FileStatus != types.FileStatusComplete || errCount > 0 {
		target = types.JobStatusValidationFailed
	}
	// A job that was never admitted takes no outcome, and takes no file
	// status row either: a rejected callback must leave nothing behind.
	if job.Status != types.JobStatusValidating && job.Status != target {
		return nil, apperr.IllegalTransition(string(job.Status), string(target))
	}

	// Admitted or replayed: the file status row is upserted so a repeated
	// callback replaces rather than duplicates it.
	filename := outcome.Filename
	if filename == "" {
		filename = job.OriginalFilename
	}
	if err := s.fileStatuses.Upsert(dbc.Ctx, transaction, job.ID, filename, outcome.FileStatus, outcome.MissingHeaders, outcome.DuplicatedHeaders); err != nil {
		return nil, err
	}

	if job.Status == target {
		// Re-delivered callback; re-check dependents in case admission
		// was lost after the original transition.
		if target.TerminalSuccess() {
			if err := s.advanceDependents(dbc, job); err != nil {
				return nil, err
			}
		}
		return job, nil
	}
	ok, err := s.jobs.UpdateStatusCAS(dbc.Ctx, transaction, job.ID, types.JobStatusValidating, target)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: job %s left %q during validation outcome", apperr.ErrConcurrentModification, job.ID, job.Status)
	}
	s.appendEvent(dbc, job, types.JobStatusValidating, target, "", fmt.Sprintf("validation finished with %d error occurrences", errCount))
	s.log.Info("Validation outcome recorded", "job_id", job.ID, "submission_id", job.SubmissionID, "status", target, "error_occurrences", errCount)
	job.Status = target
	if target.TerminalSuccess() {
		if err := s.advanceDependents(dbc, job); err != nil {
			return nil, err
		}
	}
	return job, nil
}

func (s *pipelineService) FailJob(dbc dbctx.Context, jobID uuid.UUID, failure types.JobStatus, reason string) (*types.Job, error) {
	if !failure.TerminalFailure() {
		return nil, apperr.IllegalTransition("", string(failure))
	}
	transaction := dbc.Tx
	if transaction == nil {
		transaction = s.db
	}
	job, err := s.jobs.GetByID(dbc.Ctx, transaction, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status == failure {
		return job, nil
	}
	if job.Status.Terminal() {
		return nil, apperr.IllegalTransition(string(job.Status), string(failure))
	}
	ok, err := s.jobs.UpdateStatusCAS(dbc.Ctx, transaction, job.ID, job.Status, failure)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: job %s left %q during failure report", apperr.ErrConcurrentModification, job.ID, job.Status)
	}
	s.appendEvent(dbc, job, job.Status, failure, "", reason)
	s.log.Warn("Job failed", "job_id", job.ID, "submission_id", job.SubmissionID, "status", failure, "reason", reason)
	job.Status = failure
	return job, nil
}

// advanceDependents admits every dependent whose prerequisites are all
// terminal-success. Admission itself is a compare-and-set from created, so
// two workers finishing the last two prerequisites at once cannot admit the
// same dependent twice; the loser's update matches zero rows.
func (s *pipelineService) advanceDependents(dbc dbctx.Context, job *types.Job) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = s.db
	}
	dependents, err := s.jobs.ListDependents(dbc.Ctx, transaction, job.ID)
	if err != nil {
		return err
	}
	for _, dep := range dependents {
		if dep.Status != types.JobStatusCreated {
			continue
		}
		prereqs, err := s.jobs.ListPrerequisites(dbc.Ctx, transaction, dep.ID)
		if err != nil {
			return err
		}
		ready := true
		for _, p := range prereqs {
			if !p.Status.TerminalSuccess() {
				ready = false
				break
			}
		}
		if !ready {
			continue
		}
		ok, err := s.jobs.UpdateStatusCAS(dbc.Ctx, transaction, dep.ID, types.JobStatusCreated, types.JobStatusValidating)
		if err != nil {
			return err
		}
		if !ok {
			// Another worker admitted it first.
			continue
		}
		s.appendEvent(dbc, dep, types.JobStatusCreated, types.JobStatusValidating, "", "prerequisites satisfied")
		s.log.Info("Dependent job admitted to validation", "job_id", dep.ID, "submission_id", dep.SubmissionID, "job_type", dep.JobType, "file_type", dep.FileType)
	}
	return nil
}

func (s *pipelineService) CheckStatus(dbc dbctx.Context, submissionID uuid.UUID) (map[string]JobStatusView, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = s.db
	}
	if _, err := s.submissions.GetByID(dbc.Ctx, transaction, submissionID); err != nil {
		return nil, err
	}
	jobs, err := s.jobs.ListBySubmission(dbc.Ctx, transaction, submissionID)
	if err != nil {
		return nil, err
	}
	jobIDs := make([]uuid.UUID, 0, len(jobs))
	for _, j := range jobs {
		jobIDs = append(jobIDs, j.ID)
	}
	statuses, err := s.fileStatuses.ListByJobIDs(dbc.Ctx, transaction, jobIDs)
	if err != nil {
		return nil, err
	}
	statusByJob := make(map[uuid.UUID]*types.FileStatus, len(statuses))
	for _, fs := range statuses {
		statusByJob[fs.JobID] = fs
	}

	out := make(map[string]JobStatusView, len(jobs))
	for _, j := range jobs {
		view := JobStatusView{
			JobStatus:         string(j.Status),
			JobType:           string(j.JobType),
			FileType:          string(j.FileType),
			Filename:          j.OriginalFilename,
			FileStatus:        string(types.FileStatusUnvalidated),
			MissingHeaders:    []string{},
			DuplicatedHeaders: []string{},
		}
		if j.Status == types.JobStatusCreated {
			waiting, err := s.hasUnmetPrerequisites(dbc, j.ID)
			if err != nil {
				return nil, err
			}
			if waiting {
				view.JobStatus = string(types.JobStatusWaiting)
			}
		}
		if fs := statusByJob[j.ID]; fs != nil {
			view.FileStatus = string(fs.Status)
			view.MissingHeaders = repos.DecodeHeaders(fs.MissingHeaders)
			view.DuplicatedHeaders = repos.DecodeHeaders(fs.DuplicatedHeaders)
			if view.Filename == "" {
				view.Filename = fs.Filename
			}
		}
		out[j.ID.String()] = view
	}
	return out, nil
}

func (s *pipelineService) hasUnmetPrerequisites(dbc dbctx.Context, jobID uuid.UUID) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = s.db
	}
	prereqs, err := s.jobs.ListPrerequisites(dbc.Ctx, transaction, jobID)
	if err != nil {
		return false, err
	}
	for _, p := range prereqs {
		if !p.Status.TerminalSuccess() {
			return true, nil
		}
	}
	return false, nil
}

func (s *pipelineService) appendEvent(dbc dbctx.Context, job *types.Job, from, to types.JobStatus, actorAgency, note string) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = s.db
	}
	event := &types.JobEvent{
		JobID:        job.ID,
		SubmissionID: job.SubmissionID,
		FromStatus:   from,
		ToStatus:     to,
		ActorAgency:  actorAgency,
		Note:         note,
	}
	if err := s.events.Append(dbc.Ctx, transaction, event); err != nil {
		// The ledger is an audit trail, not a source of truth; a failed
		// append must not roll back an applied transition.
		s.log.Warn("Failed to append job event", "job_id", job.ID, "to_status", to, "error", err)
	}
}

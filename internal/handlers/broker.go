package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/openfiscal/broker-backend/internal/pkg/apperr"
	"github.com/openfiscal/broker-backend/internal/pkg/dbctx"
	"github.com/openfiscal/broker-backend/internal/pkg/logger"
	"github.com/openfiscal/broker-backend/internal/requestdata"
	"github.com/openfiscal/broker-backend/internal/services"
	"github.com/openfiscal/broker-backend/internal/types"
)

// finalizeRetries bounds the internal compare-and-set retry loop before a
// conflict is surfaced to the client.
const finalizeRetries = 3

type BrokerHandler struct {
	log         *logger.Logger
	submissions services.SubmissionService
	pipeline    services.PipelineService
	reports     services.ReportService
}

func NewBrokerHandler(baseLog *logger.Logger, submissions services.SubmissionService, pipeline services.PipelineService, reports services.ReportService) *BrokerHandler {
	return &BrokerHandler{
		log:         baseLog.With("handler", "BrokerHandler"),
		submissions: submissions,
		pipeline:    pipeline,
		reports:     reports,
	}
}

type submitFilesRequest struct {
	SubmissionID    string     `json:"submission_id"`
	Appropriations  string     `json:"appropriations"`
	Award           string     `json:"award"`
	AwardFinancial  string     `json:"award_financial"`
	ProgramActivity string     `json:"program_activity"`
	ReportingStart  *time.Time `json:"reporting_start"`
	ReportingEnd    *time.Time `json:"reporting_end"`
}

// POST /v1/submit_files
func (h *BrokerHandler) SubmitFiles(c *gin.Context) {
	actor := requestdata.GetActor(c.Request.Context())
	if actor == nil {
		RespondError(c, http.StatusUnauthorized, "missing_actor", errors.New("no actor on request"))
		return
	}
	var body submitFilesRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}

	req := services.SubmitFilesRequest{
		FilesByType:    map[types.FileType]string{},
		ReportingStart: body.ReportingStart,
		ReportingEnd:   body.ReportingEnd,
	}
	if body.SubmissionID != "" {
		id, err := uuid.Parse(body.SubmissionID)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "invalid_submission_id", err)
			return
		}
		req.SubmissionID = &id
	}
	for fileType, filename := range map[types.FileType]string{
		types.FileTypeAppropriations:  body.Appropriations,
		types.FileTypeAward:           body.Award,
		types.FileTypeAwardFinancial:  body.AwardFinancial,
		types.FileTypeProgramActivity: body.ProgramActivity,
	} {
		if filename != "" {
			req.FilesByType[fileType] = filename
		}
	}

	resp, err := h.submissions.SubmitFiles(dbctx.Context{Ctx: c.Request.Context()}, actor, req)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, resp)
}

type finalizeJobRequest struct {
	UploadID string `json:"upload_id" binding:"required"`
}

// POST /v1/finalize_job
func (h *BrokerHandler) FinalizeJob(c *gin.Context) {
	actor := requestdata.GetActor(c.Request.Context())
	if actor == nil {
		RespondError(c, http.StatusUnauthorized, "missing_actor", errors.New("no actor on request"))
		return
	}
	var body finalizeJobRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	jobID, err := uuid.Parse(body.UploadID)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_upload_id", err)
		return
	}

	dbc := dbctx.Context{Ctx: c.Request.Context()}
	var job *types.Job
	for attempt := 0; attempt < finalizeRetries; attempt++ {
		job, err = h.pipeline.FinalizeUpload(dbc, jobID, actor.AgencyCode)
		if err == nil || !errors.Is(err, apperr.ErrConcurrentModification) {
			break
		}
		h.log.Debug("Finalize conflicted, retrying with fresh state", "job_id", jobID, "attempt", attempt+1)
	}
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, gin.H{"job_id": job.ID, "status": job.Status})
}

type submissionRequest struct {
	SubmissionID string `json:"submission_id" binding:"required"`
}

// POST /v1/check_status
func (h *BrokerHandler) CheckStatus(c *gin.Context) {
	submissionID, ok := h.parseSubmissionID(c)
	if !ok {
		return
	}
	snapshot, err := h.pipeline.CheckStatus(dbctx.Context{Ctx: c.Request.Context()}, submissionID)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, snapshot)
}

// POST /v1/submission_error_reports
func (h *BrokerHandler) ErrorReport(c *gin.Context) {
	submissionID, ok := h.parseSubmissionID(c)
	if !ok {
		return
	}
	report, err := h.reports.ErrorReport(dbctx.Context{Ctx: c.Request.Context()}, submissionID)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, gin.H{"submission_id": submissionID, "reports": report})
}

type errorMetricsRequest struct {
	SubmissionID string `json:"submission_id" binding:"required"`
	FileType     string `json:"file_type"`
}

// POST /v1/error_metrics
//
// With no file_type the response carries every catalog file type, matching
// the shape clients already consume; an unknown file_type yields an empty
// list under that key rather than an error.
func (h *BrokerHandler) ErrorMetrics(c *gin.Context) {
	var body errorMetricsRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	submissionID, err := uuid.Parse(body.SubmissionID)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_submission_id", err)
		return
	}

	dbc := dbctx.Context{Ctx: c.Request.Context()}
	out := gin.H{}
	if body.FileType != "" {
		fileType, known := types.ParseFileType(body.FileType)
		if !known {
			out[body.FileType] = []services.ErrorMetric{}
			RespondOK(c, out)
			return
		}
		metrics, err := h.reports.ErrorMetrics(dbc, submissionID, fileType)
		if err != nil {
			RespondAppError(c, err)
			return
		}
		out[string(fileType)] = metrics
		RespondOK(c, out)
		return
	}
	for _, fileType := range types.FileTypes {
		metrics, err := h.reports.ErrorMetrics(dbc, submissionID, fileType)
		if err != nil {
			RespondAppError(c, err)
			return
		}
		out[string(fileType)] = metrics
	}
	RespondOK(c, out)
}

func (h *BrokerHandler) parseSubmissionID(c *gin.Context) (uuid.UUID, bool) {
	var body submissionRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return uuid.Nil, false
	}
	submissionID, err := uuid.Parse(body.SubmissionID)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_submission_id", err)
		return uuid.Nil, false
	}
	return submissionID, true
}

package services

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/openfiscal/broker-backend/internal/pkg/dbctx"
	"github.com/openfiscal/broker-backend/internal/pkg/logger"
	"github.com/openfiscal/broker-backend/internal/repos"
	"github.com/openfiscal/broker-backend/internal/types"
)

// ErrorTypeCount is one distinct error type with its aggregate occurrences.
type ErrorTypeCount struct {
	ErrorType   string `json:"error_type"`
	Occurrences int    `json:"occurrences"`
}

// FileErrorSummary is the per-file entry of the submission error report.
type FileErrorSummary struct {
	FileType     string           `json:"file_type"`
	ErrorCount   int              `json:"error_count"`
	ErrorsByType []ErrorTypeCount `json:"errors_by_type"`
}

// ErrorMetric is one deduplicated error as returned by the metrics view.
type ErrorMetric struct {
	Filename    string `json:"filename"`
	FieldName   string `json:"field_name,omitempty"`
	ErrorType   string `json:"error_type"`
	RuleFailed  string `json:"rule_failed,omitempty"`
	Occurrences int    `json:"occurrences"`
	FirstRow    *int   `json:"first_row,omitempty"`
}

// ReportService is the read-only aggregation layer over jobs, file statuses
// and error records. It never mutates anything.
type ReportService interface {
	// ErrorReport returns one summary per file type present in the
	// submission, in catalog order, with a trailing entry for cross-file
	// errors when any were recorded.
	ErrorReport(dbc dbctx.Context, submissionID uuid.UUID) ([]FileErrorSummary, error)
	// ErrorMetrics returns the deduplicated errors for one file type, in
	// row-encounter order. A clean or absent file type yields an empty
	// slice, not an error.
	ErrorMetrics(dbc dbctx.Context, submissionID uuid.UUID, fileType types.FileType) ([]ErrorMetric, error)
}

type reportService struct {
	db           *gorm.DB
	log          *logger.Logger
	jobs         repos.JobRepo
	submissions  repos.SubmissionRepo
	errorRecords repos.ErrorRecordRepo
}

func NewReportService(
	db *gorm.DB,
	baseLog *logger.Logger,
	jobs repos.JobRepo,
	submissions repos.SubmissionRepo,
	errorRecords repos.ErrorRecordRepo,
) ReportService {
	return &reportService{
		db:           db,
		log:          baseLog.With("service", "ReportService"),
		jobs:         jobs,
		submissions:  submissions,
		errorRecords: errorRecords,
	}
}

func (s *reportService) ErrorReport(dbc dbctx.Context, submissionID uuid.UUID) ([]FileErrorSummary, error) {
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
	present := map[types.FileType]bool{}
	for _, j := range jobs {
		present[j.FileType] = true
	}
	records, err := s.errorRecords.ListBySubmission(dbc.Ctx, transaction, submissionID)
	if err != nil {
		return nil, err
	}
	jobFileType := make(map[uuid.UUID]types.FileType, len(jobs))
	for _, j := range jobs {
		jobFileType[j.ID] = j.FileType
	}

	summarize := func(fileType types.FileType) FileErrorSummary {
		summary := FileErrorSummary{
			FileType:     string(fileType),
			ErrorsByType: []ErrorTypeCount{},
		}
		byType := map[string]int{}
		order := []string{}
		for _, rec := range records {
			if jobFileType[rec.JobID] != fileType {
				continue
			}
			key := string(rec.ErrorType)
			if _, seen := byType[key]; !seen {
				order = append(order, key)
			}
			byType[key] += rec.Occurrences
			summary.ErrorCount += rec.Occurrences
		}
		for _, key := range order {
			summary.ErrorsByType = append(summary.ErrorsByType, ErrorTypeCount{ErrorType: key, Occurrences: byType[key]})
		}
		return summary
	}

	out := make([]FileErrorSummary, 0, len(types.FileTypes)+1)
	for _, fileType := range types.FileTypes {
		if !present[fileType] {
			continue
		}
		out = append(out, summarize(fileType))
	}
	// The cross-file check carries no catalog file type; when it recorded
	// errors they surface in a trailing slot instead of vanishing.
	if cross := summarize(types.FileTypeUnspecified); cross.ErrorCount > 0 {
		out = append(out, cross)
	}
	return out, nil
}

func (s *reportService) ErrorMetrics(dbc dbctx.Context, submissionID uuid.UUID, fileType types.FileType) ([]ErrorMetric, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = s.db
	}
	records, err := s.errorRecords.ListBySubmissionAndFileType(dbc.Ctx, transaction, submissionID, fileType)
	if err != nil {
		return nil, err
	}
	out := make([]ErrorMetric, 0, len(records))
	for _, rec := range records {
		out = append(out, ErrorMetric{
			Filename:    rec.Filename,
			FieldName:   rec.FieldName,
			ErrorType:   string(rec.ErrorType),
			RuleFailed:  rec.RuleFailed,
			Occurrences: rec.Occurrences,
			FirstRow:    rec.FirstRow,
		})
	}
	return out, nil
}

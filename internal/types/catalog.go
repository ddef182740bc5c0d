package types

// JobStatus is the persisted status of one pipeline job.
type JobStatus string

const (
	JobStatusCreated            JobStatus = "created"
	JobStatusUploading          JobStatus = "uploading"
	JobStatusUploadComplete     JobStatus = "upload_complete"
	JobStatusValidating         JobStatus = "validating"
	JobStatusValidationComplete JobStatus = "validation_complete"
	JobStatusUploadFailed       JobStatus = "upload_failed"
	JobStatusValidationFailed   JobStatus = "validation_failed"

	// JobStatusWaiting is a derived read-only label for a created job whose
	// prerequisites are not all terminal-success. It is never stored.
	JobStatusWaiting JobStatus = "waiting"
)

// TerminalSuccess reports whether dependents may be unblocked by this status.
func (s JobStatus) TerminalSuccess() bool {
	return s == JobStatusUploadComplete || s == JobStatusValidationComplete
}

// TerminalFailure reports whether the status absorbs all further transitions.
func (s JobStatus) TerminalFailure() bool {
	return s == JobStatusUploadFailed || s == JobStatusValidationFailed
}

func (s JobStatus) Terminal() bool {
	return s.TerminalSuccess() || s.TerminalFailure()
}

// successTransitions holds the forward edges of the job state machine.
// Failure states are handled separately: they are reachable from any
// non-terminal state and absorb everything afterwards.
var successTransitions = map[JobStatus][]JobStatus{
	JobStatusCreated:        {JobStatusUploading, JobStatusValidating},
	JobStatusUploading:      {JobStatusUploadComplete},
	JobStatusUploadComplete: {JobStatusValidating},
	JobStatusValidating:     {JobStatusValidationComplete},
}

// CanTransition reports whether from→to is a legal move. The dependency
// gate on entering validating is enforced by the pipeline service, not here.
func CanTransition(from, to JobStatus) bool {
	if from.TerminalFailure() {
		return false
	}
	if to.TerminalFailure() {
		return !from.Terminal()
	}
	for _, next := range successTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// JobType is the kind of pipeline work a job performs.
type JobType string

const (
	JobTypeFileUpload          JobType = "file_upload"
	JobTypeCSVRecordValidation JobType = "csv_record_validation"
	JobTypeExternalValidation  JobType = "external_validation"
)

// FileType identifies which broker file a job covers.
type FileType string

const (
	FileTypeAppropriations  FileType = "appropriations"
	FileTypeAward           FileType = "award"
	FileTypeAwardFinancial  FileType = "award_financial"
	FileTypeProgramActivity FileType = "program_activity"
	FileTypeUnspecified     FileType = "unspecified"
)

// FileTypes is the catalog order used by submission intake and reports.
var FileTypes = []FileType{
	FileTypeAppropriations,
	FileTypeAward,
	FileTypeAwardFinancial,
	FileTypeProgramActivity,
}

func ParseFileType(s string) (FileType, bool) {
	for _, ft := range FileTypes {
		if string(ft) == s {
			return ft, true
		}
	}
	if s == string(FileTypeUnspecified) {
		return FileTypeUnspecified, true
	}
	return "", false
}

// FileStatusValue is the validation outcome of one file-producing job.
type FileStatusValue string

const (
	FileStatusComplete    FileStatusValue = "complete"
	FileStatusHeaderError FileStatusValue = "header_error"
	FileStatusUnvalidated FileStatusValue = "unvalidated"
)

// ErrorType classifies one validation failure.
type ErrorType string

const (
	ErrorTypeTypeMismatch    ErrorType = "type_mismatch"
	ErrorTypeRuleViolation   ErrorType = "rule_violation"
	ErrorTypeMissingField    ErrorType = "missing_field"
	ErrorTypeDuplicateHeader ErrorType = "duplicate_header"
	ErrorTypeMissingHeader   ErrorType = "missing_header"
)

package types

import (
	"time"

	"github.com/google/uuid"
)

// ErrorRecord is one deduplicated validation failure. The same
// (job, field, error type, rule) combination recurring bumps Occurrences
// and leaves FirstRow alone, so a million identically-failing rows cost one
// row of storage while the first offender stays available for diagnostics.
//
// FieldName and RuleFailed use empty strings rather than NULLs for
// header-level errors so the dedupe index compares them reliably.
type ErrorRecord struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	JobID       uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:ux_error_record_dedupe" json:"job_id"`
	Filename    string    `gorm:"column:filename" json:"filename"`
	FieldName   string    `gorm:"column:field_name;not null;default:'';uniqueIndex:ux_error_record_dedupe" json:"field_name,omitempty"`
	ErrorType   ErrorType `gorm:"column:error_type;not null;uniqueIndex:ux_error_record_dedupe" json:"error_type"`
	RuleFailed  string    `gorm:"column:rule_failed;not null;default:'';uniqueIndex:ux_error_record_dedupe" json:"rule_failed,omitempty"`
	Occurrences int       `gorm:"column:occurrences;not null;default:1" json:"occurrences"`
	FirstRow    *int      `gorm:"column:first_row" json:"first_row,omitempty"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time `gorm:"not null" json:"updated_at"`
}

func (ErrorRecord) TableName() string { return "error_record" }

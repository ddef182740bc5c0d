package types

import (
	"time"

	"github.com/google/uuid"
)

// Submission is one user-initiated batch of broker files. The core never
// deletes submissions; removal is an external administrative action.
type Submission struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID         uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"`
	AgencyCode     string     `gorm:"column:agency_code;index" json:"agency_code,omitempty"`
	ReportingStart *time.Time `gorm:"column:reporting_start" json:"reporting_start,omitempty"`
	ReportingEnd   *time.Time `gorm:"column:reporting_end" json:"reporting_end,omitempty"`
	CreatedAt      time.Time  `gorm:"not null;index" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"not null" json:"updated_at"`
}

func (Submission) TableName() string { return "submission" }

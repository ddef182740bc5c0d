package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// JobEvent is an append-only ledger of applied status transitions. It is the
// audit timeline for a submission and is never consulted for pipeline
// decisions.
type JobEvent struct {
	ID           int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	JobID        uuid.UUID      `gorm:"type:uuid;not null;index" json:"job_id"`
	SubmissionID uuid.UUID      `gorm:"type:uuid;not null;index" json:"submission_id"`
	FromStatus   JobStatus      `gorm:"column:from_status" json:"from_status,omitempty"`
	ToStatus     JobStatus      `gorm:"column:to_status;not null" json:"to_status"`
	ActorAgency  string         `gorm:"column:actor_agency" json:"actor_agency,omitempty"`
	Note         string         `gorm:"column:note;type:text" json:"note,omitempty"`
	Data         datatypes.JSON `gorm:"column:data" json:"data,omitempty"`
	CreatedAt    time.Time      `gorm:"not null;index" json:"created_at"`
}

func (JobEvent) TableName() string { return "job_event" }

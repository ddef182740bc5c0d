package types

import (
	"time"

	"github.com/google/uuid"
)

// Job is one schedulable unit of pipeline work. Jobs are created in a batch
// when the submission is opened and mutated only by the pipeline service.
type Job struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SubmissionID     uuid.UUID `gorm:"type:uuid;not null;index" json:"submission_id"`
	FileType         FileType  `gorm:"column:file_type;not null;index" json:"file_type"`
	JobType          JobType   `gorm:"column:job_type;not null;index" json:"job_type"`
	Status           JobStatus `gorm:"column:status;not null;index" json:"status"`
	OriginalFilename string    `gorm:"column:original_filename" json:"original_filename,omitempty"`
	UploadKey        string    `gorm:"column:upload_key" json:"upload_key,omitempty"`
	CreatedAt        time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt        time.Time `gorm:"not null" json:"updated_at"`
}

func (Job) TableName() string { return "job" }

// JobDependency is one prerequisite edge: JobID may not start validating
// until PrerequisiteID is terminal-success.
type JobDependency struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	JobID          uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:ux_job_dependency_edge" json:"job_id"`
	PrerequisiteID uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:ux_job_dependency_edge" json:"prerequisite_id"`
	CreatedAt      time.Time `gorm:"not null" json:"created_at"`
}

func (JobDependency) TableName() string { return "job_dependency" }

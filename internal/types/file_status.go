package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// FileStatus is the validation outcome for one file-producing job, keyed
// one-to-one by job id. A re-validation replaces the header lists wholesale.
type FileStatus struct {
	ID                int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	JobID             uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:ux_file_status_job" json:"job_id"`
	Filename          string          `gorm:"column:filename" json:"filename"`
	Status            FileStatusValue `gorm:"column:status;not null" json:"status"`
	MissingHeaders    datatypes.JSON  `gorm:"column:missing_headers" json:"missing_headers"`
	DuplicatedHeaders datatypes.JSON  `gorm:"column:duplicated_headers" json:"duplicated_headers"`
	CreatedAt         time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"not null" json:"updated_at"`
}

func (FileStatus) TableName() string { return "file_status" }

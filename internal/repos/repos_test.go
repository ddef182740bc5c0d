package repos

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/openfiscal/broker-backend/internal/pkg/logger"
	"github.com/openfiscal/broker-backend/internal/types"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := gdb.AutoMigrate(
		&types.Submission{},
		&types.Job{},
		&types.JobDependency{},
		&types.FileStatus{},
		&types.ErrorRecord{},
		&types.JobEvent{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return gdb
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

func seedSubmission(t *testing.T, gdb *gorm.DB, agency string) *types.Submission {
	t.Helper()
	log := newTestLogger(t)
	sub, err := NewSubmissionRepo(gdb, log).Create(context.Background(), nil, &types.Submission{
		UserID:     uuid.New(),
		AgencyCode: agency,
	})
	if err != nil {
		t.Fatalf("seed submission: %v", err)
	}
	return sub
}

func seedJob(t *testing.T, repo JobRepo, submissionID uuid.UUID, fileType types.FileType, jobType types.JobType, status types.JobStatus) *types.Job {
	t.Helper()
	job := &types.Job{
		SubmissionID: submissionID,
		FileType:     fileType,
		JobType:      jobType,
		Status:       status,
	}
	if _, err := repo.Create(context.Background(), nil, []*types.Job{job}); err != nil {
		t.Fatalf("seed job: %v", err)
	}
	return job
}

package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/openfiscal/broker-backend/internal/pkg/dbctx"
	"github.com/openfiscal/broker-backend/internal/pkg/logger"
	"github.com/openfiscal/broker-backend/internal/repos"
	"github.com/openfiscal/broker-backend/internal/requestdata"
	"github.com/openfiscal/broker-backend/internal/types"
)

type testEnv struct {
	db           *gorm.DB
	log          *logger.Logger
	submissions  repos.SubmissionRepo
	jobs         repos.JobRepo
	fileStatuses repos.FileStatusRepo
	errorRecords repos.ErrorRecordRepo
	events       repos.JobEventRepo

	submissionSvc SubmissionService
	pipeline      PipelineService
	reports       ReportService
}

func newTestEnv(t *testing.T) *testEnv {
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
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}

	env := &testEnv{
		db:           gdb,
		log:          log,
		submissions:  repos.NewSubmissionRepo(gdb, log),
		jobs:         repos.NewJobRepo(gdb, log),
		fileStatuses: repos.NewFileStatusRepo(gdb, log),
		errorRecords: repos.NewErrorRecordRepo(gdb, log),
		events:       repos.NewJobEventRepo(gdb, log),
	}
	env.submissionSvc = NewSubmissionService(gdb, log, env.submissions, env.jobs, env.events, NewKeyHandleIssuer("submissions"))
	env.pipeline = NewPipelineService(gdb, log, env.jobs, env.submissions, env.fileStatuses, env.errorRecords, env.events)
	env.reports = NewReportService(gdb, log, env.jobs, env.submissions, env.errorRecords)
	return env
}

func (env *testEnv) dbc() dbctx.Context {
	return dbctx.Context{Ctx: context.Background()}
}

func (env *testEnv) actor(agency string) *requestdata.Actor {
	return &requestdata.Actor{UserID: uuid.New(), AgencyCode: agency}
}

// submitOne opens a submission with a single award file and returns the
// response for convenience.
func (env *testEnv) submitOne(t *testing.T, agency string) *SubmitFilesResponse {
	t.Helper()
	resp, err := env.submissionSvc.SubmitFiles(env.dbc(), env.actor(agency), SubmitFilesRequest{
		FilesByType: map[types.FileType]string{
			types.FileTypeAward: "award.csv",
		},
	})
	if err != nil {
		t.Fatalf("SubmitFiles: %v", err)
	}
	return resp
}

func (env *testEnv) jobStatus(t *testing.T, jobID uuid.UUID) types.JobStatus {
	t.Helper()
	job, err := env.jobs.GetByID(context.Background(), nil, jobID)
	if err != nil {
		t.Fatalf("GetByID(%s): %v", jobID, err)
	}
	return job.Status
}

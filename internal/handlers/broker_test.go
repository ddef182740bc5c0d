package handlers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/openfiscal/broker-backend/internal/handlers"
	"github.com/openfiscal/broker-backend/internal/middleware"
	"github.com/openfiscal/broker-backend/internal/pkg/logger"
	"github.com/openfiscal/broker-backend/internal/repos"
	"github.com/openfiscal/broker-backend/internal/server"
	"github.com/openfiscal/broker-backend/internal/services"
	"github.com/openfiscal/broker-backend/internal/types"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

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

	submissionRepo := repos.NewSubmissionRepo(gdb, log)
	jobRepo := repos.NewJobRepo(gdb, log)
	fileStatusRepo := repos.NewFileStatusRepo(gdb, log)
	errorRecordRepo := repos.NewErrorRecordRepo(gdb, log)
	eventRepo := repos.NewJobEventRepo(gdb, log)

	submissionSvc := services.NewSubmissionService(gdb, log, submissionRepo, jobRepo, eventRepo, services.NewKeyHandleIssuer("submissions"))
	pipeline := services.NewPipelineService(gdb, log, jobRepo, submissionRepo, fileStatusRepo, errorRecordRepo, eventRepo)
	reports := services.NewReportService(gdb, log, jobRepo, submissionRepo, errorRecordRepo)

	return server.NewRouter(server.RouterConfig{
		Log:             log,
		BrokerHandler:   handlers.NewBrokerHandler(log, submissionSvc, pipeline, reports),
		ActorMiddleware: middleware.NewActorMiddleware(log),
	})
}

func doJSON(t *testing.T, router *gin.Engine, path string, body map[string]any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func actorHeaders(agency string) map[string]string {
	return map[string]string{
		"X-User-ID":     uuid.New().String(),
		"X-Agency-Code": agency,
	}
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	out := map[string]any{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestHealthCheck(t *testing.T) {
	router := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/healthcheck", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthcheck status: want=200 got=%d", rec.Code)
	}
}

func TestSubmitFilesRequiresActor(t *testing.T) {
	router := newTestRouter(t)
	rec := doJSON(t, router, "/v1/submit_files", map[string]any{"award": "award.csv"}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no actor headers: want=401 got=%d", rec.Code)
	}
}

func TestSubmitThenFinalizeAndCheckStatus(t *testing.T) {
	router := newTestRouter(t)
	headers := actorHeaders("012")

	rec := doJSON(t, router, "/v1/submit_files", map[string]any{"award": "award.csv"}, headers)
	if rec.Code != http.StatusOK {
		t.Fatalf("submit_files: want=200 got=%d body=%s", rec.Code, rec.Body.String())
	}
	submitResp := decodeBody(t, rec)
	submissionID, _ := submitResp["submission_id"].(string)
	if submissionID == "" {
		t.Fatalf("submit response missing submission_id: %v", submitResp)
	}
	files, _ := submitResp["files"].(map[string]any)
	awardFile, _ := files[string(types.FileTypeAward)].(map[string]any)
	uploadID, _ := awardFile["job_id"].(string)
	if uploadID == "" {
		t.Fatalf("submit response missing award job: %v", submitResp)
	}
	if key, _ := awardFile["upload_key"].(string); key == "" {
		t.Fatalf("submit response missing upload key: %v", awardFile)
	}

	rec = doJSON(t, router, "/v1/finalize_job", map[string]any{"upload_id": uploadID}, headers)
	if rec.Code != http.StatusOK {
		t.Fatalf("finalize_job: want=200 got=%d body=%s", rec.Code, rec.Body.String())
	}
	finalizeResp := decodeBody(t, rec)
	if got, _ := finalizeResp["status"].(string); got != string(types.JobStatusUploadComplete) {
		t.Fatalf("finalize status: want=%q got=%q", types.JobStatusUploadComplete, got)
	}

	// Replaying the callback maps onto the same terminal answer.
	rec = doJSON(t, router, "/v1/finalize_job", map[string]any{"upload_id": uploadID}, headers)
	if rec.Code != http.StatusOK {
		t.Fatalf("finalize_job replay: want=200 got=%d", rec.Code)
	}

	rec = doJSON(t, router, "/v1/check_status", map[string]any{"submission_id": submissionID}, headers)
	if rec.Code != http.StatusOK {
		t.Fatalf("check_status: want=200 got=%d body=%s", rec.Code, rec.Body.String())
	}
	snapshot := decodeBody(t, rec)
	if len(snapshot) != 3 {
		t.Fatalf("snapshot entries: want=3 got=%d", len(snapshot))
	}
	uploadView, _ := snapshot[uploadID].(map[string]any)
	if got, _ := uploadView["job_status"].(string); got != string(types.JobStatusUploadComplete) {
		t.Fatalf("snapshot upload status: want=%q got=%q", types.JobStatusUploadComplete, got)
	}
}

func TestFinalizeJobAgencyMismatch(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, "/v1/submit_files", map[string]any{"award": "award.csv"}, actorHeaders("012"))
	if rec.Code != http.StatusOK {
		t.Fatalf("submit_files: want=200 got=%d", rec.Code)
	}
	submitResp := decodeBody(t, rec)
	files, _ := submitResp["files"].(map[string]any)
	awardFile, _ := files[string(types.FileTypeAward)].(map[string]any)
	uploadID, _ := awardFile["job_id"].(string)

	rec = doJSON(t, router, "/v1/finalize_job", map[string]any{"upload_id": uploadID}, actorHeaders("097"))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("cross-agency finalize: want=403 got=%d body=%s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	errObj, _ := body["error"].(map[string]any)
	if got, _ := errObj["code"].(string); got != "agency_mismatch" {
		t.Fatalf("error code: want=agency_mismatch got=%q", got)
	}
}

func TestCheckStatusUnknownSubmissionIs404(t *testing.T) {
	router := newTestRouter(t)
	rec := doJSON(t, router, "/v1/check_status", map[string]any{"submission_id": uuid.New().String()}, actorHeaders("012"))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown submission: want=404 got=%d", rec.Code)
	}
}

func TestFinalizeJobRejectsMalformedID(t *testing.T) {
	router := newTestRouter(t)
	rec := doJSON(t, router, "/v1/finalize_job", map[string]any{"upload_id": "not-a-uuid"}, actorHeaders("012"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed upload_id: want=400 got=%d", rec.Code)
	}
}

func TestErrorMetricsShape(t *testing.T) {
	router := newTestRouter(t)
	headers := actorHeaders("012")

	rec := doJSON(t, router, "/v1/submit_files", map[string]any{"award": "award.csv"}, headers)
	if rec.Code != http.StatusOK {
		t.Fatalf("submit_files: want=200 got=%d", rec.Code)
	}
	submissionID, _ := decodeBody(t, rec)["submission_id"].(string)

	// No file_type: one (possibly empty) list per catalog file type.
	rec = doJSON(t, router, "/v1/error_metrics", map[string]any{"submission_id": submissionID}, headers)
	if rec.Code != http.StatusOK {
		t.Fatalf("error_metrics: want=200 got=%d body=%s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if len(body) != len(types.FileTypes) {
		t.Fatalf("metric keys: want=%d got=%d (%v)", len(types.FileTypes), len(body), body)
	}
	for _, fileType := range types.FileTypes {
		list, ok := body[string(fileType)].([]any)
		if !ok || len(list) != 0 {
			t.Fatalf("clean submission metrics for %s: want empty list got=%v", fileType, body[string(fileType)])
		}
	}

	// Unknown file_type keys an empty list rather than failing the request.
	rec = doJSON(t, router, "/v1/error_metrics", map[string]any{"submission_id": submissionID, "file_type": "executive_compensation"}, headers)
	if rec.Code != http.StatusOK {
		t.Fatalf("unknown file_type: want=200 got=%d", rec.Code)
	}
	body = decodeBody(t, rec)
	list, ok := body["executive_compensation"].([]any)
	if !ok || len(list) != 0 {
		t.Fatalf("unknown file_type metrics: want empty list got=%v", body)
	}
}

func TestErrorReportEndpoint(t *testing.T) {
	router := newTestRouter(t)
	headers := actorHeaders("012")

	rec := doJSON(t, router, "/v1/submit_files", map[string]any{"award": "award.csv"}, headers)
	if rec.Code != http.StatusOK {
		t.Fatalf("submit_files: want=200 got=%d", rec.Code)
	}
	submissionID, _ := decodeBody(t, rec)["submission_id"].(string)

	rec = doJSON(t, router, "/v1/submission_error_reports", map[string]any{"submission_id": submissionID}, headers)
	if rec.Code != http.StatusOK {
		t.Fatalf("submission_error_reports: want=200 got=%d body=%s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	reportsList, ok := body["reports"].([]any)
	if !ok || len(reportsList) != 1 {
		t.Fatalf("reports: want one entry got=%v", body)
	}
	entry, _ := reportsList[0].(map[string]any)
	if got, _ := entry["file_type"].(string); got != string(types.FileTypeAward) {
		t.Fatalf("report file type: want=%q got=%q", types.FileTypeAward, got)
	}
	if got, _ := entry["error_count"].(float64); got != 0 {
		t.Fatalf("report error count: want=0 got=%v", got)
	}
}

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/openfiscal/broker-backend/internal/pkg/logger"
	"github.com/openfiscal/broker-backend/internal/requestdata"
)

func TestRequestIDHonorsUpstreamHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestID())
	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, GetRequestID(c))
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "upstream-id")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Body.String() != "upstream-id" {
		t.Fatalf("request id: want=upstream-id got=%q", rec.Body.String())
	}
	if rec.Header().Get("X-Request-ID") != "upstream-id" {
		t.Fatalf("response header: want=upstream-id got=%q", rec.Header().Get("X-Request-ID"))
	}
}

func TestRequestIDGeneratesWhenAbsent(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestID())
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if _, err := uuid.Parse(rec.Header().Get("X-Request-ID")); err != nil {
		t.Fatalf("generated request id: %v", err)
	}
}

func TestRequireActorParsesHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	am := NewActorMiddleware(log)

	var seen *requestdata.Actor
	router := gin.New()
	router.Use(am.RequireActor())
	router.GET("/", func(c *gin.Context) {
		seen = requestdata.GetActor(c.Request.Context())
		c.Status(http.StatusOK)
	})

	userID := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-User-ID", userID.String())
	req.Header.Set("X-Agency-Code", "012")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("with identity headers: want=200 got=%d", rec.Code)
	}
	if seen == nil || seen.UserID != userID || seen.AgencyCode != "012" {
		t.Fatalf("actor on context: got=%+v", seen)
	}
}

func TestRequireActorRejectsMissingIdentity(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	am := NewActorMiddleware(log)

	router := gin.New()
	router.Use(am.RequireActor())
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing identity: want=401 got=%d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-User-ID", "not-a-uuid")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("malformed identity: want=401 got=%d", rec.Code)
	}
}

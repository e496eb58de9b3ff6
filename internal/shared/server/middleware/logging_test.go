package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"rateshop-backend/internal/shared/auth"
	"rateshop-backend/internal/shared/telemetry"
)

func TestLoggingIncludesRequiredFields(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	telemetry.SetOutput(&buf)
	t.Cleanup(func() { telemetry.SetOutput(os.Stdout) })

	verifier := &auth.HMACVerifier{Secret: []byte("test-secret")}
	token, err := verifier.Sign(auth.Claims{Sub: "user-1"})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	router := gin.New()
	router.Use(RequestID(), Logging(), Auth(verifier))
	router.POST("/jobs", func(c *gin.Context) {
		c.Set("jobId", "job-1")
		c.Set("statusTransition", "->pending")
		c.JSON(http.StatusAccepted, gin.H{"jobId": "job-1"})
	})

	req := httptest.NewRequest(http.MethodPost, "/jobs", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Request-Id", "req-42")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	last := lines[len(lines)-1]
	var payload map[string]any
	if err := json.Unmarshal([]byte(last), &payload); err != nil {
		t.Fatalf("decode log json %q: %v", last, err)
	}

	if payload["msg"] != "request.complete" {
		t.Fatalf("unexpected msg: %v", payload["msg"])
	}
	if payload["request_id"] != "req-42" {
		t.Fatalf("unexpected request_id: %v", payload["request_id"])
	}
	if payload["user_id"] != "user-1" {
		t.Fatalf("unexpected user_id: %v", payload["user_id"])
	}
	if payload["job_id"] != "job-1" {
		t.Fatalf("unexpected job_id: %v", payload["job_id"])
	}
	if payload["status_transition"] != "->pending" {
		t.Fatalf("unexpected status_transition: %v", payload["status_transition"])
	}
	if payload["status"] != float64(http.StatusAccepted) {
		t.Fatalf("unexpected status: %v", payload["status"])
	}
	if _, ok := payload["duration_ms"]; !ok {
		t.Fatalf("missing duration_ms")
	}
}

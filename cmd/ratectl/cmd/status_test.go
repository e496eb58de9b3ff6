package cmd

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spf13/viper"

	"rateshop-backend/internal/jobs"
	"rateshop-backend/internal/shipping"
)

func TestStatusCommand_Success(t *testing.T) {
	resetViper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/jobs/job-1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(jobs.StatusView{
			JobID:          "job-1",
			Status:         jobs.StatusFailed,
			ProcessedCount: 3,
			TotalCount:     10,
			Error:          "result store unavailable",
		})
	}))
	defer server.Close()

	viper.Set("url", server.URL)
	viper.Set("token", "test-token")

	out, err := execute(t, "status", "job-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"Job:        job-1", "Status:     failed", "Progress:   3/10", "Error:      result store unavailable"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output, got: %s", want, out)
		}
	}
}

func TestStatusCommand_NotFound(t *testing.T) {
	resetViper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":"not_found","message":"job not found"}}`))
	}))
	defer server.Close()

	viper.Set("url", server.URL)
	viper.Set("token", "test-token")

	_, err := execute(t, "status", "missing")
	if err == nil || !strings.Contains(err.Error(), "API error (404)") {
		t.Fatalf("expected 404 API error, got %v", err)
	}
}

func TestResultsCommand_Table(t *testing.T) {
	resetViper()

	savings := 4.0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/jobs/job-1/results" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(jobs.ResultSet{
			Results: []shipping.ShipmentResult{{
				ShipmentID:  "s1",
				CurrentRate: 12,
				Savings:     &savings,
				Best: &shipping.RateCandidate{
					CarrierAccountID: "acct-card",
					ServiceCode:      "GND",
					Amount:           8,
					Source:           shipping.SourceRateCard,
				},
			}},
			Orphans: []shipping.ShipmentResult{{ShipmentID: "s2", Orphaned: true, OrphanReason: "no rate for zone 9"}},
		})
	}))
	defer server.Close()

	viper.Set("url", server.URL)
	viper.Set("token", "test-token")

	out, err := execute(t, "results", "job-1", "--json=false")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"SHIPMENT", "acct-card", "8.00", "12.00", "4.00", "rate_card", "Orphaned (1):", "s2: no rate for zone 9"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output, got: %s", want, out)
		}
	}
}

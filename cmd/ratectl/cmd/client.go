package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"rateshop-backend/internal/jobs"
)

// RateClient calls the rate-shopping API.
type RateClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewRateClient creates a client with the given base URL and token.
func NewRateClient(baseURL, token string) *RateClient {
	return &RateClient{
		BaseURL: baseURL,
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError represents an error response from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// SubmitResponse is the body of an accepted submission.
type SubmitResponse struct {
	JobID  string      `json:"jobId"`
	Status jobs.Status `json:"status"`
}

// SubmitJob sends POST /jobs.
func (c *RateClient) SubmitJob(req jobs.SubmitRequest) (*SubmitResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	var out SubmitResponse
	if err := c.do(http.MethodPost, "/jobs", body, http.StatusAccepted, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetJob sends GET /jobs/{id}.
func (c *RateClient) GetJob(jobID string) (*jobs.StatusView, error) {
	var out jobs.StatusView
	if err := c.do(http.MethodGet, "/jobs/"+url.PathEscape(jobID), nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetResults sends GET /jobs/{id}/results.
func (c *RateClient) GetResults(jobID string) (*jobs.ResultSet, error) {
	var out jobs.ResultSet
	if err := c.do(http.MethodGet, "/jobs/"+url.PathEscape(jobID)+"/results", nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *RateClient) do(method, path string, body []byte, want int, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Add("Authorization", "Bearer "+c.Token)
	req.Header.Add("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != want {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(respBody)}
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// errorMessage extracts the message of an error envelope, falling back to
// the raw body.
func errorMessage(body []byte) string {
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		return envelope.Error.Code + ": " + envelope.Error.Message
	}
	return string(body)
}

package main

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rateshop-backend/internal/jobs"
	"rateshop-backend/internal/queue"
)

type scriptedProcessor map[string]error

func (p scriptedProcessor) Process(_ context.Context, jobID string) error {
	return p[jobID]
}

func record(t *testing.T, messageID, jobID string) events.SQSMessage {
	t.Helper()
	body, err := queue.EncodeMessage(queue.Message{JobID: jobID, RequestID: "req-" + jobID})
	require.NoError(t, err)
	return events.SQSMessage{MessageId: messageID, Body: string(body)}
}

func TestProcessBatchReportsRetryableFailures(t *testing.T) {
	proc := scriptedProcessor{
		"job-ok":      nil,
		"job-locked":  jobs.ErrJobLocked,
		"job-gone":    jobs.ErrNotFound,
		"job-flaky":   errors.New("connection reset"),
		"job-timeout": context.DeadlineExceeded,
	}
	event := events.SQSEvent{Records: []events.SQSMessage{
		record(t, "m1", "job-ok"),
		record(t, "m2", "job-locked"),
		record(t, "m3", "job-gone"),
		record(t, "m4", "job-flaky"),
		{MessageId: "m5", Body: "{not json"},
		record(t, "m6", "job-timeout"),
	}}

	resp := processBatch(t.Context(), proc, event)

	ids := make([]string, 0, len(resp.BatchItemFailures))
	for _, f := range resp.BatchItemFailures {
		ids = append(ids, f.ItemIdentifier)
	}
	assert.Equal(t, []string{"m2", "m4", "m6"}, ids)
}

func TestProcessBatchEmpty(t *testing.T) {
	resp := processBatch(t.Context(), scriptedProcessor{}, events.SQSEvent{})
	assert.Empty(t, resp.BatchItemFailures)
}

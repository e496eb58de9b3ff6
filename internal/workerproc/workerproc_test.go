package workerproc

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"rateshop-backend/internal/jobs"
	"rateshop-backend/internal/queue"
)

type recordingProcessor struct {
	jobID string
	err   error
}

func (p *recordingProcessor) Process(ctx context.Context, jobID string) error {
	p.jobID = jobID
	return p.err
}

func TestParseMessageErrors(t *testing.T) {
	if _, _, err := ParseMessage("  "); !errors.As(err, &ErrEmptyBody{}) {
		t.Fatalf("expected ErrEmptyBody, got %v", err)
	}
	if _, _, err := ParseMessage("{"); !errors.As(err, &ErrDecode{}) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
	_, meta, err := ParseMessage(`{"requestId":"req-1"}`)
	var missing ErrMissingJobID
	if !errors.As(err, &missing) || missing.RequestID != "req-1" {
		t.Fatalf("expected ErrMissingJobID with request id, got %v", err)
	}
	if meta.BodyLen == 0 || len(meta.BodySHA) != 64 {
		t.Fatalf("unexpected meta: %+v", meta)
	}
}

func TestHandleMessageProcessesJob(t *testing.T) {
	proc := &recordingProcessor{}
	body := `{"jobId":"job-1","requestId":"req-1","version":1}`
	if err := HandleMessage(context.Background(), proc, body); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if proc.jobID != "job-1" {
		t.Fatalf("expected job-1, got %q", proc.jobID)
	}
}

func TestHandleMessageUsesParsedMessage(t *testing.T) {
	proc := &recordingProcessor{}
	ctx := WithParsedMessage(context.Background(), queue.Message{JobID: "job-2"})
	if err := HandleMessage(ctx, proc, "ignored"); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if proc.jobID != "job-2" {
		t.Fatalf("expected job-2, got %q", proc.jobID)
	}
}

func TestPermanentClassification(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"empty", ErrEmptyBody{}, true},
		{"decode", ErrDecode{Err: errors.New("bad")}, true},
		{"missing id", ErrMissingJobID{}, true},
		{"unknown job", ErrProcess{JobID: "x", Err: fmt.Errorf("load job: %w", jobs.ErrNotFound)}, true},
		{"locked", ErrProcess{JobID: "x", Err: jobs.ErrJobLocked}, false},
		{"interrupted", ErrProcess{JobID: "x", Err: context.Canceled}, false},
	}
	for _, tc := range cases {
		if got := Permanent(tc.err); got != tc.want {
			t.Fatalf("%s: Permanent = %v, want %v", tc.name, got, tc.want)
		}
	}

	proc := &recordingProcessor{err: jobs.ErrJobLocked}
	err := HandleMessage(context.Background(), proc, `{"jobId":"job-1"}`)
	if !errors.Is(err, jobs.ErrJobLocked) || Permanent(err) {
		t.Fatalf("expected retryable locked error, got %v", err)
	}
}

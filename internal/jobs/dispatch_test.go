package jobs

import (
	"context"
	"testing"
	"time"

	"rateshop-backend/internal/queue"
)

func TestQueueDispatcherSendsJobMessage(t *testing.T) {
	client := &queue.MemoryClient{}
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	d := QueueDispatcher{Client: client, Now: func() time.Time { return now }}

	ctx := WithRequestID(context.Background(), "req-9")
	if err := d.Dispatch(ctx, Job{ID: "job-1"}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	sent := client.Sent()
	if len(sent) != 1 {
		t.Fatalf("expected one message, got %d", len(sent))
	}
	if sent[0].JobID != "job-1" || sent[0].RequestID != "req-9" || sent[0].EnqueuedAt != "2026-05-01T08:00:00Z" {
		t.Fatalf("unexpected message: %+v", sent[0])
	}

	if err := (QueueDispatcher{}).Dispatch(ctx, Job{ID: "job-1"}); err == nil {
		t.Fatalf("expected error without a client")
	}
}

func TestInProcessDispatcherRunsDetached(t *testing.T) {
	ran := make(chan string, 1)
	d := InProcessDispatcher{Process: func(ctx context.Context, jobID string) error {
		ran <- requestIDFromContext(ctx)
		return nil
	}}

	ctx, cancel := context.WithCancel(WithRequestID(context.Background(), "req-1"))
	if err := d.Dispatch(ctx, Job{ID: "job-1"}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	cancel()

	select {
	case got := <-ran:
		if got != "req-1" {
			t.Fatalf("expected request id to carry over, got %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("pipeline did not start")
	}
}

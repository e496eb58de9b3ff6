package main

// Build the Lambda handler binary:
//   GOOS=linux GOARCH=amd64 CGO_ENABLED=0 go build -o bootstrap ./cmd/lambda-worker

import (
	"context"
	"errors"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"rateshop-backend/internal/bootstrap"
	"rateshop-backend/internal/jobs"
	"rateshop-backend/internal/shared/config"
	"rateshop-backend/internal/shared/metrics"
	"rateshop-backend/internal/shared/telemetry"
	"rateshop-backend/internal/workerproc"
)

var (
	initOnce sync.Once
	initErr  error
	app      *bootstrap.App
)

func initApp() {
	cfg, err := config.Load()
	if err != nil {
		initErr = err
		return
	}
	telemetry.Init(cfg.LogLevel)
	built, err := bootstrap.Build(cfg, bootstrap.RoleWorker)
	if err != nil {
		initErr = err
		return
	}
	app = built
}

func handler(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	initOnce.Do(initApp)
	if initErr != nil {
		telemetry.Error("lambda.bootstrap_failed", map[string]any{"error": initErr})
		failures := make([]events.SQSBatchItemFailure, 0, len(event.Records))
		for _, record := range event.Records {
			failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
		}
		return events.SQSEventResponse{BatchItemFailures: failures}, initErr
	}
	return processBatch(ctx, app.JobsService, event), nil
}

// processBatch handles each record and reports the ones SQS should redeliver.
// Permanent failures are acknowledged so they do not loop until the DLQ.
func processBatch(ctx context.Context, proc workerproc.Processor, event events.SQSEvent) events.SQSEventResponse {
	failures := make([]events.SQSBatchItemFailure, 0)
	for _, record := range event.Records {
		metrics.WorkerMessage("received")
		fields := map[string]any{"message_id": record.MessageId}

		err := workerproc.HandleMessage(ctx, proc, record.Body)
		var perr workerproc.ErrProcess
		if errors.As(err, &perr) {
			fields["job_id"] = perr.JobID
			fields["request_id"] = perr.RequestID
		}

		switch {
		case err == nil:
			metrics.WorkerMessage("completed")
			continue
		case workerproc.Permanent(err):
			fields["error"] = err.Error()
			telemetry.Error("worker.job.unrecoverable", fields)
			metrics.WorkerMessage("deleted_unrecoverable")
			continue
		case errors.Is(err, jobs.ErrJobLocked):
			telemetry.Info("worker.job.locked", fields)
			metrics.WorkerMessage("locked")
		default:
			fields["error"] = err.Error()
			telemetry.Error("worker.job.failed", fields)
			metrics.WorkerMessage("failed")
		}
		failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
	}
	return events.SQSEventResponse{BatchItemFailures: failures}
}

func main() {
	lambda.Start(handler)
}

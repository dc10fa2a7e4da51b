package queue

import "context"

// Job is a background worker bound to one message type. Trade recording
// and error-digest flushing run as jobs so HTTP handlers never block on
// ClickHouse or Kafka.
type Job interface {
	// Name returns the unique identifier of the job.
	Name() string

	// Type returns the type of message that the job handles.
	Type() string

	// Handle processes the job with the given payload.
	Handle(ctx context.Context, payload interface{}) error
}

package reconcile

import "context"

// Queue is the transport for async reconciliation jobs: SQS in deployment,
// an in-memory channel for local runs and tests.
type Queue interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]QueueMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
}

// QueueMessage is one received queue entry.
type QueueMessage struct {
	ID            string
	Body          string
	ReceiptHandle string
}

// JobPayload is the JSON body carried on the queue.
type JobPayload struct {
	JobID   string  `json:"job_id"`
	Request Request `json:"request"`
}

// Package notify carries the outbound side effects of reconciliation:
// rejection webhooks toward the dialer platform and summary emails.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/TCaken/loancrm/pkg/logging"
)

// ErrDeliveryFailed indicates the rejection endpoint did not accept the call.
var ErrDeliveryFailed = errors.New("notify: rejection delivery failed")

const webhookTimeout = 10 * time.Second

// Rejection is the fixed payload fired when an appointment resolves with the
// rejected outcome code.
type Rejection struct {
	Phone         string    `json:"phone"`
	OwnerID       uuid.UUID `json:"owner_id"`
	OwnerName     string    `json:"owner_name,omitempty"`
	AppointmentID uuid.UUID `json:"appointment_id"`
	Kind          string    `json:"kind"`
	Code          string    `json:"code"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// RejectionNotifier delivers a rejection payload to the outside world.
type RejectionNotifier interface {
	Notify(ctx context.Context, rej Rejection) error
}

// WebhookDispatcher posts rejections to a configured HTTP endpoint.
type WebhookDispatcher struct {
	client *http.Client
	url    string
	token  string
	logger *logging.Logger
}

func NewWebhookDispatcher(url, token string, logger *logging.Logger) *WebhookDispatcher {
	if url == "" {
		panic("notify: webhook URL cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &WebhookDispatcher{
		client: &http.Client{Timeout: webhookTimeout},
		url:    url,
		token:  token,
		logger: logger,
	}
}

func (d *WebhookDispatcher) Notify(ctx context.Context, rej Rejection) error {
	body, err := json.Marshal(rej)
	if err != nil {
		return fmt.Errorf("notify: encode rejection: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: build rejection request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if d.token != "" {
		req.Header.Set("Authorization", "Bearer "+d.token)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d", ErrDeliveryFailed, resp.StatusCode)
	}
	d.logger.Info("rejection notification delivered", "appointment_id", rej.AppointmentID, "code", rej.Code)
	return nil
}

// StubDispatcher logs rejections without sending anything. Used when no
// webhook is configured.
type StubDispatcher struct {
	logger *logging.Logger
}

func NewStubDispatcher(logger *logging.Logger) *StubDispatcher {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubDispatcher{logger: logger}
}

func (d *StubDispatcher) Notify(_ context.Context, rej Rejection) error {
	d.logger.Info("stub rejection dispatcher: would notify", "appointment_id", rej.AppointmentID, "code", rej.Code)
	return nil
}

var _ RejectionNotifier = (*WebhookDispatcher)(nil)
var _ RejectionNotifier = (*StubDispatcher)(nil)

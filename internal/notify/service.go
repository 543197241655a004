package notify

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/TCaken/loancrm/internal/observability/metrics"
	"github.com/TCaken/loancrm/pkg/logging"
)

// AttemptLedger gates rejection notifications to one attempt per appointment.
type AttemptLedger interface {
	MarkAttempted(ctx context.Context, kind string, appointmentID uuid.UUID) (bool, error)
}

// Dispatcher wires the ledger gate in front of the notifier. Delivery
// problems come back as annotation text, never as errors: status transitions
// are the source of truth and a failed webhook must not roll them back.
type Dispatcher struct {
	ledger   AttemptLedger
	notifier RejectionNotifier
	metrics  *metrics.EngineMetrics
	logger   *logging.Logger
}

func NewDispatcher(ledger AttemptLedger, notifier RejectionNotifier, m *metrics.EngineMetrics, logger *logging.Logger) *Dispatcher {
	if ledger == nil {
		panic("notify: attempt ledger required")
	}
	if notifier == nil {
		notifier = NewStubDispatcher(logger)
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Dispatcher{ledger: ledger, notifier: notifier, metrics: m, logger: logger}
}

// Dispatch attempts the rejection notification once per appointment. The
// returned annotation is empty on success or when the attempt was already
// claimed by an earlier pass.
func (d *Dispatcher) Dispatch(ctx context.Context, rej Rejection) string {
	claimed, err := d.ledger.MarkAttempted(ctx, rej.Kind, rej.AppointmentID)
	if err != nil {
		d.logger.Error("rejection ledger write failed", "error", err, "appointment_id", rej.AppointmentID)
		d.metrics.ObserveRejection("ledger_error")
		return fmt.Sprintf("rejection notification not attempted (ledger error): %v", err)
	}
	if !claimed {
		d.logger.Debug("rejection notification already attempted", "appointment_id", rej.AppointmentID)
		d.metrics.ObserveRejection("deduplicated")
		return ""
	}

	if err := d.notifier.Notify(ctx, rej); err != nil {
		d.logger.Error("rejection notification failed", "error", err, "appointment_id", rej.AppointmentID, "code", rej.Code)
		d.metrics.ObserveRejection("failed")
		return fmt.Sprintf("rejection notification failed: %v", err)
	}
	d.metrics.ObserveRejection("delivered")
	return ""
}

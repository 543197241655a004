package reconcile

import (
	"context"
	"fmt"
	"strings"

	"github.com/TCaken/loancrm/internal/notify"
	"github.com/TCaken/loancrm/pkg/logging"
)

// SummaryMailer emails the end-of-day pass summary to the operations team.
// Mail failures are logged only; the pass result already stands.
type SummaryMailer struct {
	sender     notify.EmailSender
	recipients []string
	logger     *logging.Logger
}

func NewSummaryMailer(sender notify.EmailSender, recipients []string, logger *logging.Logger) *SummaryMailer {
	if logger == nil {
		logger = logging.Default()
	}
	return &SummaryMailer{sender: sender, recipients: recipients, logger: logger}
}

// Send renders and delivers the summary. A nil sender or empty recipient
// list makes it a no-op.
func (m *SummaryMailer) Send(ctx context.Context, sum *Summary) {
	if m == nil || m.sender == nil || len(m.recipients) == 0 || sum == nil {
		return
	}

	subject := fmt.Sprintf("Reconciliation summary (%s) %s", sum.Mode, sum.TargetDate)
	body := renderSummary(sum)

	for _, to := range m.recipients {
		msg := notify.EmailMessage{To: to, Subject: subject, Body: body}
		if err := m.sender.Send(ctx, msg); err != nil {
			m.logger.Error("summary email failed", "error", err, "to", to, "date", sum.TargetDate)
		}
	}
}

func renderSummary(sum *Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Reconciliation pass for %s (mode %s)\n\n", sum.TargetDate, sum.Mode)
	fmt.Fprintf(&b, "Processed rows: %d\n", sum.Processed)
	fmt.Fprintf(&b, "Updated:       %d\n", sum.Updated)
	fmt.Fprintf(&b, "Created:       %d\n", sum.Created)
	fmt.Fprintf(&b, "Moved:         %d\n", sum.Moved)
	fmt.Fprintf(&b, "Skipped:       %d\n", sum.Skipped)
	fmt.Fprintf(&b, "Errors:        %d\n", sum.Errors)
	if len(sum.Notes) > 0 {
		b.WriteString("\nNotes:\n")
		for _, note := range sum.Notes {
			fmt.Fprintf(&b, "  - %s\n", note)
		}
	}
	return b.String()
}

// Package reconcile applies the external attendance feed to the appointment
// book. One pass classifies every row by phone, drives the appointment status
// machine, and sweeps overdue appointments past the no-show threshold.
package reconcile

import (
	"strings"

	"github.com/TCaken/loancrm/internal/appointment"
)

// Dialer outcome codes carried on feed rows.
const (
	CodePresent          = "P"
	CodePresentRejected  = "PRS"
	CodeRejectedBySystem = "RS"
	CodeRejected         = "R"
)

const rsFallbackNote = "Rejected by System."

// outcomeForCode maps a feed outcome code to the appointment outcome it
// drives. The second return reports whether the code should fire a rejection
// notification; the third whether the code is recognized at all. Unknown or
// blank codes leave the appointment untouched for this pass.
func outcomeForCode(code string, remarks []string) (appointment.Outcome, bool, bool) {
	switch strings.ToUpper(strings.TrimSpace(code)) {
	case CodePresent:
		return appointment.Outcome{Code: CodePresent, Note: "Done."}, false, true
	case CodePresentRejected:
		return appointment.Outcome{Code: CodePresentRejected, Note: "Customer Rejected."}, false, true
	case CodeRejectedBySystem:
		return appointment.Outcome{
			Code:        CodeRejectedBySystem,
			Note:        rsNote(remarks),
			OwnerStatus: appointment.OwnerStatusMissedRS,
		}, false, true
	case CodeRejected:
		return appointment.Outcome{Code: CodeRejected, Note: "Rejected."}, true, true
	default:
		return appointment.Outcome{}, false, false
	}
}

func rsNote(remarks []string) string {
	parts := make([]string, 0, len(remarks))
	for _, r := range remarks {
		if r = strings.TrimSpace(r); r != "" {
			parts = append(parts, r)
		}
	}
	if len(parts) == 0 {
		return rsFallbackNote
	}
	return strings.Join(parts, "; ")
}

package appointment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from Status
		to   Status
		want bool
	}{
		{StatusUpcoming, StatusDone, true},
		{StatusUpcoming, StatusMissed, true},
		{StatusUpcoming, StatusCancelled, true},
		{StatusUpcoming, StatusUpcoming, false},
		{StatusDone, StatusMissed, false},
		{StatusDone, StatusUpcoming, false},
		{StatusMissed, StatusDone, false},
		{StatusCancelled, StatusDone, false},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.want, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestTerminal(t *testing.T) {
	assert.False(t, StatusUpcoming.Terminal())
	assert.True(t, StatusDone.Terminal())
	assert.True(t, StatusMissed.Terminal())
	assert.True(t, StatusCancelled.Terminal())
}

func TestOutcomeOwnerStatus(t *testing.T) {
	// Default mirrors the appointment status.
	assert.Equal(t, "done", Outcome{Code: "P"}.ownerStatusFor(StatusDone))
	assert.Equal(t, "missed", Outcome{}.ownerStatusFor(StatusMissed))

	// The RS path overrides the owner-level value while the appointment goes
	// to done.
	o := Outcome{Code: "RS", OwnerStatus: OwnerStatusMissedRS}
	assert.Equal(t, "missed/RS", o.ownerStatusFor(StatusDone))
}

func TestKindTables(t *testing.T) {
	lead := KindLead.tables()
	assert.Equal(t, "appointments", lead.appointments)
	assert.Equal(t, "appointment_timeslots", lead.joins)
	assert.Equal(t, "lead_id", lead.ownerColumn)

	borrower := KindBorrower.tables()
	assert.Equal(t, "borrower_appointments", borrower.appointments)
	assert.Equal(t, "borrower_appointment_timeslots", borrower.joins)
	assert.Equal(t, "borrower_id", borrower.ownerColumn)
}

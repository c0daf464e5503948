package manager

import (
	"time"

	"github.com/birddigital/callmanager/pkg/gateway"
)

// Call statuses reported by the provider's status callback
const (
	StatusCompleted = "completed"
	StatusBusy      = "busy"
	StatusFailed    = "failed"
	StatusCanceled  = "canceled"
	StatusNoAnswer  = "no-answer"
)

// StatusReport is the part of a provider status callback the manager needs
type StatusReport struct {
	CallSID    string `json:"CallSid"`
	CallStatus string `json:"CallStatus"`
}

// Record is the call state held for one phone number
type Record struct {
	To             string     `json:"to"`
	Active         bool       `json:"active"`
	FailedCount    int        `json:"failed_count"`
	RetryNotBefore *time.Time `json:"retry_not_before,omitempty"`
	CallSID        string     `json:"call_sid,omitempty"`

	// Call is nil while the call is being placed
	Call gateway.CallHandle `json:"-"`
}

// CoolingDown reports whether the retry delay after a failure is still running
func (r Record) CoolingDown(now time.Time) bool {
	return r.RetryNotBefore != nil && now.Before(*r.RetryNotBefore)
}

// entry owns the timer armed for the record's current call
type entry struct {
	Record
	timer *time.Timer
}

func (e *entry) stopTimer() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

// Package manager tracks outbound calls per phone number. It places calls
// through a Dialer, hangs them up after a timeout, applies provider status
// reports and publishes start, success and failed events.
package manager

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"

	"github.com/birddigital/callmanager/pkg/gateway"
	"github.com/birddigital/callmanager/pkg/provider"
)

const hangupTimeout = 30 * time.Second

// Dialer places calls and applies changes to them. *gateway.Gateway
// satisfies it.
type Dialer interface {
	PlaceCall(ctx context.Context, params provider.CallParams, to ...string) (gateway.CallHandle, error)
	ApplyCallUpdate(ctx context.Context, h gateway.CallHandle, changes provider.CallUpdate) error
}

// Manager holds one Record per phone number
type Manager struct {
	dialer     Dialer
	timeout    time.Duration
	retryDelay time.Duration
	now        func() time.Time
	log        logrus.FieldLogger

	mu    sync.Mutex
	calls map[string]*entry

	events bus
}

// New creates a Manager that places calls through d
func New(d Dialer, opts ...Option) *Manager {
	m := &Manager{
		dialer: d,
		now:    time.Now,
		log:    logrus.StandardLogger(),
		calls:  make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.WithField("component", "manager")
	return m
}

// Subscribe registers h for events of the given kind. The returned function
// removes the registration.
func (m *Manager) Subscribe(kind EventKind, h Handler) func() {
	return m.events.subscribe(kind, false, h)
}

// SubscribeAll registers h for every event
func (m *Manager) SubscribeAll(h Handler) func() {
	return m.events.subscribe("", true, h)
}

// Spawn places a call to number and marks its record active. data is passed
// through to the start event.
func (m *Manager) Spawn(ctx context.Context, number string, params provider.CallParams, data interface{}) (Record, error) {
	log := m.log.WithField("number", number)

	m.mu.Lock()
	e, ok := m.calls[number]
	if !ok {
		e = &entry{}
		m.calls[number] = e
	}
	e.stopTimer()
	e.To = number
	e.Active = true
	e.RetryNotBefore = nil
	e.Call = nil
	e.CallSID = ""
	m.mu.Unlock()

	params.To = number
	handle, err := m.dialer.PlaceCall(ctx, params, number)
	if err != nil {
		// the record stays active without a call until the number is spawned again
		log.WithError(err).Error("failed to place call")
		return Record{}, eris.Wrapf(err, "failed to spawn call to %s", number)
	}

	m.mu.Lock()
	e.stopTimer()
	e.Call = handle
	e.CallSID = handle.SID()
	if m.timeout > 0 {
		e.timer = time.AfterFunc(m.timeout, func() { m.hangup(number, handle) })
	}
	rec := e.Record
	m.mu.Unlock()

	log.WithField("call_sid", rec.CallSID).Info("call started")
	m.events.publish(newEvent(EventStart, rec, data, m.now()))
	return rec, nil
}

// hangup ends a call whose timeout expired. The record is left for the
// provider's final status report to settle.
func (m *Manager) hangup(number string, h gateway.CallHandle) {
	log := m.log.WithFields(logrus.Fields{"number": number, "call_sid": h.SID()})
	log.Info("call timed out, hanging up")

	ctx, cancel := context.WithTimeout(context.Background(), hangupTimeout)
	defer cancel()

	if err := m.dialer.ApplyCallUpdate(ctx, h, provider.CallUpdate{Status: StatusCompleted}); err != nil {
		log.WithError(err).Warn("failed to hang up timed out call")
	}
}

// ReportStatus applies a provider status report for number. Reports for
// unknown or inactive numbers and for calls other than the current one are
// ignored.
func (m *Manager) ReportStatus(number string, report StatusReport, data interface{}) {
	log := m.log.WithFields(logrus.Fields{
		"number":   number,
		"call_sid": report.CallSID,
		"status":   report.CallStatus,
	})

	m.mu.Lock()
	e, ok := m.calls[number]
	if !ok || !e.Active {
		m.mu.Unlock()
		log.Debug("no active call for number")
		return
	}
	if e.Call == nil || e.Call.SID() != report.CallSID {
		expected := e.CallSID
		m.mu.Unlock()
		log.WithField("expected_sid", expected).Warn("status report for another call")
		return
	}

	var ev *Event
	switch report.CallStatus {
	case StatusCompleted:
		// the event carries the record as it was when the call finished
		evt := newEvent(EventSuccess, e.Record, data, m.now())
		ev = &evt
		m.calls[number] = &entry{Record: Record{To: number}}
	case StatusBusy, StatusFailed, StatusCanceled, StatusNoAnswer:
		retryAt := m.now().Add(m.retryDelay)
		e.RetryNotBefore = &retryAt
		e.Active = false
		e.FailedCount++
		evt := newEvent(EventFailed, e.Record, data, m.now())
		ev = &evt
	default:
		log.Error("unexpected call status")
	}
	e.stopTimer()
	m.mu.Unlock()

	if ev != nil {
		log.WithField("event", ev.Kind).Info("call finished")
		m.events.publish(*ev)
	}
}

// ListActiveOrPendingRetry returns the numbers with a call in progress or a
// retry delay still running, sorted.
func (m *Manager) ListActiveOrPendingRetry() []string {
	now := m.now()

	m.mu.Lock()
	out := make([]string, 0, len(m.calls))
	for number, e := range m.calls {
		if e.Active || e.CoolingDown(now) {
			out = append(out, number)
		}
	}
	total := len(m.calls)
	m.mu.Unlock()

	sort.Strings(out)
	m.log.WithFields(logrus.Fields{"managed": total, "listed": len(out)}).Debug("listing calls")
	return out
}

// Lookup returns a snapshot of the record for number
func (m *Manager) Lookup(number string) (Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.calls[number]
	if !ok {
		return Record{}, false
	}
	return e.Record, true
}

// Close stops every pending timeout timer
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.calls {
		e.stopTimer()
	}
}

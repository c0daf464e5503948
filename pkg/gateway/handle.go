package gateway

import (
	"context"

	"github.com/birddigital/callmanager/pkg/provider"
)

// FakeCallSID identifies the placeholder handle returned when no call is placed
const FakeCallSID = "fake_call"

// CallHandle references a placed call
type CallHandle interface {
	// SID is the provider-assigned call identifier used to match status reports
	SID() string
	// Call is the provider's view of the call at creation; nil for placeholders
	Call() *provider.Call
	// Update applies changes to the call on the provider side
	Update(ctx context.Context, changes provider.CallUpdate) error
}

type callHandle struct {
	call     *provider.Call
	provider provider.Provider
}

func (h *callHandle) SID() string { return h.call.SID }
func (h *callHandle) Call() *provider.Call { return h.call }

func (h *callHandle) Update(ctx context.Context, changes provider.CallUpdate) error {
	_, err := h.provider.UpdateCall(ctx, h.call.SID, changes)
	return err
}

type placeholder struct{}

// Placeholder is the handle returned for skipped dry-run calls. Updates on it
// always succeed without contacting the provider.
var Placeholder CallHandle = placeholder{}

func (placeholder) SID() string { return FakeCallSID }
func (placeholder) Call() *provider.Call { return nil }
func (placeholder) Update(context.Context, provider.CallUpdate) error { return nil }

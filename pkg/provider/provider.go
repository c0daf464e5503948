package provider

import (
	"context"
	"fmt"
)

// Provider is the set of call/SMS operations a telephony backend must offer
type Provider interface {
	CreateCall(ctx context.Context, params CallParams) (*Call, error)
	SendMessage(ctx context.Context, params MessageParams) (*Message, error)
	FetchCall(ctx context.Context, callSID string) (*Call, error)
	UpdateCall(ctx context.Context, callSID string, changes CallUpdate) (*Call, error)
}

// Call represents a provider call resource
type Call struct {
	SID       string    `json:"sid"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Status    string    `json:"status"`
	Direction string    `json:"direction"`
	Duration  string    `json:"duration"`
	StartTime Timestamp `json:"start_time"`
	EndTime   Timestamp `json:"end_time"`
	Price     string    `json:"price"`
}

// Message represents an SMS message resource
type Message struct {
	SID       string `json:"sid"`
	From      string `json:"from"`
	To        string `json:"to"`
	Body      string `json:"body"`
	Status    string `json:"status"`
	Direction string `json:"direction"`
	Price     string `json:"price"`
}

// CallParams options for making a call. Zero values mean "not set" so that
// configured defaults can fill them in.
type CallParams struct {
	From                 string            `yaml:"from"`
	To                   string            `yaml:"to"`
	URL                  string            `yaml:"url"`    // LaML/TwiML webhook URL
	Method               string            `yaml:"method"` // POST or GET
	StatusCallback       string            `yaml:"status_callback"`
	StatusCallbackMethod string            `yaml:"status_callback_method"`
	StatusCallbackEvent  []string          `yaml:"status_callback_event"`
	Timeout              int               `yaml:"timeout"` // ring timeout, seconds
	Record               bool              `yaml:"record"`
	MachineDetection     string            `yaml:"machine_detection"` // Enable, DetectMessageEnd
	Extra                map[string]string `yaml:"extra"`             // passed through verbatim
}

// WithDefaults returns a copy of p where every zero-valued field is taken
// from d. Extra keys already present in p are kept.
func (p CallParams) WithDefaults(d CallParams) CallParams {
	out := p
	if out.From == "" {
		out.From = d.From
	}
	if out.To == "" {
		out.To = d.To
	}
	if out.URL == "" {
		out.URL = d.URL
	}
	if out.Method == "" {
		out.Method = d.Method
	}
	if out.StatusCallback == "" {
		out.StatusCallback = d.StatusCallback
	}
	if out.StatusCallbackMethod == "" {
		out.StatusCallbackMethod = d.StatusCallbackMethod
	}
	if len(out.StatusCallbackEvent) == 0 {
		out.StatusCallbackEvent = d.StatusCallbackEvent
	}
	if out.Timeout == 0 {
		out.Timeout = d.Timeout
	}
	if !out.Record {
		out.Record = d.Record
	}
	if out.MachineDetection == "" {
		out.MachineDetection = d.MachineDetection
	}
	out.Extra = mergeExtra(p.Extra, d.Extra)
	return out
}

// CallUpdate holds changes applied to an in-flight call
type CallUpdate struct {
	Status         string // "completed" hangs up, "canceled" aborts a queued call
	URL            string
	Method         string
	StatusCallback string
}

// MessageParams options for sending SMS
type MessageParams struct {
	From                string            `yaml:"from"`
	To                  string            `yaml:"to"`
	Body                string            `yaml:"body"`
	StatusCallback      string            `yaml:"status_callback"`
	MessagingServiceSID string            `yaml:"messaging_service_sid"`
	Extra               map[string]string `yaml:"extra"`
}

// WithDefaults fills zero-valued fields of p from d
func (p MessageParams) WithDefaults(d MessageParams) MessageParams {
	out := p
	if out.From == "" {
		out.From = d.From
	}
	if out.To == "" {
		out.To = d.To
	}
	if out.Body == "" {
		out.Body = d.Body
	}
	if out.StatusCallback == "" {
		out.StatusCallback = d.StatusCallback
	}
	if out.MessagingServiceSID == "" {
		out.MessagingServiceSID = d.MessagingServiceSID
	}
	out.Extra = mergeExtra(p.Extra, d.Extra)
	return out
}

func mergeExtra(explicit, defaults map[string]string) map[string]string {
	if len(explicit) == 0 && len(defaults) == 0 {
		return nil
	}
	out := make(map[string]string, len(explicit)+len(defaults))
	for k, v := range defaults {
		out[k] = v
	}
	for k, v := range explicit {
		out[k] = v
	}
	return out
}

// APIError is returned when the provider rejects a request
type APIError struct {
	StatusCode int
	Code       int    `json:"code"`
	Message    string `json:"message"`
	MoreInfo   string `json:"more_info"`
	Body       string `json:"-"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("provider API error (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("provider API error (%d): %s", e.StatusCode, e.Body)
}

// Package twilio adapts the official twilio-go SDK to provider.Provider.
package twilio

import (
	"context"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	twiliogo "github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/birddigital/callmanager/pkg/provider"
)

var _ provider.Provider = (*Provider)(nil)

// callAPI is the part of the SDK's v2010 service used here
type callAPI interface {
	CreateCall(params *openapi.CreateCallParams) (*openapi.ApiV2010Call, error)
	FetchCall(sid string, params *openapi.FetchCallParams) (*openapi.ApiV2010Call, error)
	UpdateCall(sid string, params *openapi.UpdateCallParams) (*openapi.ApiV2010Call, error)
	CreateMessage(params *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error)
}

// Provider places calls and messages through the Twilio REST API
type Provider struct {
	api callAPI
	log logrus.FieldLogger
}

// Option configures a Provider
type Option func(*Provider)

// WithLogger sets the logger
func WithLogger(log logrus.FieldLogger) Option {
	return func(p *Provider) { p.log = log }
}

// New creates a Provider authenticated with an account SID and auth token
func New(accountSID, authToken string, opts ...Option) *Provider {
	client := twiliogo.NewRestClientWithParams(twiliogo.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return newProvider(client.Api, opts...)
}

func newProvider(api callAPI, opts ...Option) *Provider {
	p := &Provider{api: api, log: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(p)
	}
	p.log = p.log.WithField("component", "twilio")
	return p
}

// Extra parameters the SDK has a typed setter for
var (
	callExtras = map[string]func(*openapi.CreateCallParams, string){
		"SendDigits":        func(c *openapi.CreateCallParams, v string) { c.SetSendDigits(v) },
		"CallerId":          func(c *openapi.CreateCallParams, v string) { c.SetCallerId(v) },
		"Twiml":             func(c *openapi.CreateCallParams, v string) { c.SetTwiml(v) },
		"FallbackUrl":       func(c *openapi.CreateCallParams, v string) { c.SetFallbackUrl(v) },
		"FallbackMethod":    func(c *openapi.CreateCallParams, v string) { c.SetFallbackMethod(v) },
		"Trim":              func(c *openapi.CreateCallParams, v string) { c.SetTrim(v) },
		"RecordingChannels": func(c *openapi.CreateCallParams, v string) { c.SetRecordingChannels(v) },
	}
	messageExtras = map[string]func(*openapi.CreateMessageParams, string){
		"MediaUrl": func(m *openapi.CreateMessageParams, v string) { m.SetMediaUrl([]string{v}) },
	}
)

// warnDropped logs Extra keys the SDK cannot send
func (p *Provider) warnDropped(dropped []string) {
	if len(dropped) > 0 {
		p.log.WithField("params", dropped).Warn("dropping unsupported extra parameters")
	}
}

// CreateCall initiates an outbound call. The SDK has no context support, so
// ctx is only checked before the request is issued.
func (p *Provider) CreateCall(ctx context.Context, params provider.CallParams) (*provider.Call, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	req, dropped := createCallParams(params)
	p.warnDropped(dropped)
	resp, err := p.api.CreateCall(req)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to create call to %s", params.To)
	}
	return callFromAPI(resp), nil
}

// FetchCall retrieves call details
func (p *Provider) FetchCall(ctx context.Context, callSID string) (*provider.Call, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp, err := p.api.FetchCall(callSID, &openapi.FetchCallParams{})
	if err != nil {
		return nil, eris.Wrapf(err, "failed to fetch call %s", callSID)
	}
	return callFromAPI(resp), nil
}

// UpdateCall modifies an in-flight call
func (p *Provider) UpdateCall(ctx context.Context, callSID string, changes provider.CallUpdate) (*provider.Call, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp, err := p.api.UpdateCall(callSID, updateCallParams(changes))
	if err != nil {
		return nil, eris.Wrapf(err, "failed to update call %s", callSID)
	}
	return callFromAPI(resp), nil
}

// SendMessage sends a text message
func (p *Provider) SendMessage(ctx context.Context, params provider.MessageParams) (*provider.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	req, dropped := createMessageParams(params)
	p.warnDropped(dropped)
	resp, err := p.api.CreateMessage(req)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to send message to %s", params.To)
	}
	return messageFromAPI(resp), nil
}

func createCallParams(p provider.CallParams) (*openapi.CreateCallParams, []string) {
	out := &openapi.CreateCallParams{}
	out.SetTo(p.To)
	out.SetUrl(p.URL)
	if p.From != "" {
		out.SetFrom(p.From)
	}
	if p.Method != "" {
		out.SetMethod(p.Method)
	}
	if p.StatusCallback != "" {
		out.SetStatusCallback(p.StatusCallback)
		if p.StatusCallbackMethod != "" {
			out.SetStatusCallbackMethod(p.StatusCallbackMethod)
		}
		if len(p.StatusCallbackEvent) > 0 {
			out.SetStatusCallbackEvent(p.StatusCallbackEvent)
		}
	}
	if p.Timeout > 0 {
		out.SetTimeout(p.Timeout)
	}
	if p.Record {
		out.SetRecord(true)
	}
	if p.MachineDetection != "" {
		out.SetMachineDetection(p.MachineDetection)
	}

	var dropped []string
	for k, v := range p.Extra {
		if set, ok := callExtras[k]; ok {
			set(out, v)
		} else {
			dropped = append(dropped, k)
		}
	}
	sort.Strings(dropped)
	return out, dropped
}

func updateCallParams(c provider.CallUpdate) *openapi.UpdateCallParams {
	out := &openapi.UpdateCallParams{}
	if c.Status != "" {
		out.SetStatus(c.Status)
	}
	if c.URL != "" {
		out.SetUrl(c.URL)
	}
	if c.Method != "" {
		out.SetMethod(c.Method)
	}
	if c.StatusCallback != "" {
		out.SetStatusCallback(c.StatusCallback)
	}
	return out
}

func createMessageParams(p provider.MessageParams) (*openapi.CreateMessageParams, []string) {
	out := &openapi.CreateMessageParams{}
	out.SetTo(p.To)
	out.SetBody(p.Body)
	if p.From != "" {
		out.SetFrom(p.From)
	}
	if p.StatusCallback != "" {
		out.SetStatusCallback(p.StatusCallback)
	}
	if p.MessagingServiceSID != "" {
		out.SetMessagingServiceSid(p.MessagingServiceSID)
	}

	var dropped []string
	for k, v := range p.Extra {
		if set, ok := messageExtras[k]; ok {
			set(out, v)
		} else {
			dropped = append(dropped, k)
		}
	}
	sort.Strings(dropped)
	return out, dropped
}

func callFromAPI(c *openapi.ApiV2010Call) *provider.Call {
	if c == nil {
		return &provider.Call{}
	}
	return &provider.Call{
		SID:       str(c.Sid),
		From:      str(c.From),
		To:        str(c.To),
		Status:    str(c.Status),
		Direction: str(c.Direction),
		Duration:  str(c.Duration),
		StartTime: timestamp(c.StartTime),
		EndTime:   timestamp(c.EndTime),
		Price:     str(c.Price),
	}
}

// timestamp parses the SDK's RFC 2822 date strings; unparsable dates are zero
func timestamp(s *string) provider.Timestamp {
	ts, _ := provider.ParseTimestamp(str(s))
	return ts
}

func messageFromAPI(m *openapi.ApiV2010Message) *provider.Message {
	if m == nil {
		return &provider.Message{}
	}
	return &provider.Message{
		SID:       str(m.Sid),
		From:      str(m.From),
		To:        str(m.To),
		Body:      str(m.Body),
		Status:    str(m.Status),
		Direction: str(m.Direction),
		Price:     str(m.Price),
	}
}

// str dereferences SDK string fields, some of which are typed enums
func str[T ~string](p *T) string {
	if p == nil {
		return ""
	}
	return string(*p)
}

// Package gateway wraps a telephony provider's call and SMS operations with
// dry-run redirection, default parameters and callback URL resolution. It
// keeps no memory of past calls.
package gateway

import (
	"context"
	"net/url"
	"os"
	"strings"

	"github.com/nyaruka/phonenumbers"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/birddigital/callmanager/pkg/config"
	"github.com/birddigital/callmanager/pkg/provider"
)

// Gateway places calls and sends texts through a provider
type Gateway struct {
	provider     provider.Provider
	host         *url.URL
	dry          config.DryRun
	callDefaults provider.CallParams
	textDefaults provider.MessageParams
	region       string
	log          logrus.FieldLogger
}

// Option configures a Gateway
type Option func(*gatewayOptions)

type gatewayOptions struct {
	log      logrus.FieldLogger
	hostname func() (string, error)
}

// WithLogger sets the gateway logger
func WithLogger(log logrus.FieldLogger) Option {
	return func(o *gatewayOptions) {
		o.log = log
	}
}

// WithHostname replaces os.Hostname as the last-resort callback host
func WithHostname(fn func() (string, error)) Option {
	return func(o *gatewayOptions) {
		o.hostname = fn
	}
}

// New creates a Gateway from configuration
func New(cfg *config.Config, p provider.Provider, opts ...Option) (*Gateway, error) {
	o := gatewayOptions{
		log:      logrus.StandardLogger(),
		hostname: os.Hostname,
	}
	for _, opt := range opts {
		opt(&o)
	}

	host, err := ResolveHost(cfg.HostOverride, cfg.Hostname, cfg.Auth, o.hostname)
	if err != nil {
		return nil, err
	}

	return &Gateway{
		provider:     p,
		host:         host,
		dry:          cfg.Dry,
		callDefaults: cfg.Call,
		textDefaults: cfg.Text,
		region:       strings.ToUpper(cfg.Region),
		log:          o.log.WithField("component", "gateway"),
	}, nil
}

// Host is the base URL callbacks are resolved against
func (g *Gateway) Host() string {
	return g.host.String()
}

// PlaceCall makes a call to the first of the given destinations, respecting
// the dry run. When nothing is dialed the placeholder handle is returned.
func (g *Gateway) PlaceCall(ctx context.Context, params provider.CallParams, to ...string) (CallHandle, error) {
	if g.dry.Skip {
		g.log.WithField("to", to).Debug("[dry-run] skipping the call")
		return Placeholder, nil
	}

	params.To = firstNonEmpty(to)
	if len(g.dry.Numbers) > 0 {
		params.To = g.dry.Numbers[0]
	}
	params = params.WithDefaults(g.callDefaults)

	var err error
	if params.StatusCallback != "" {
		if params.StatusCallback, err = g.resolve(params.StatusCallback); err != nil {
			return nil, err
		}
	}
	if params.URL, err = g.resolve(params.URL); err != nil {
		return nil, err
	}

	if params.To == "" {
		g.log.Debug("[dry-run] no destination, skipping the call")
		return Placeholder, nil
	}
	params.To = g.normalize(params.To)

	call, err := g.provider.CreateCall(ctx, params)
	if err != nil {
		return nil, eris.Wrap(err, "failed to place call")
	}

	g.log.WithFields(logrus.Fields{"to": params.To, "call_sid": call.SID}).Info("call placed")
	return &callHandle{call: call, provider: g.provider}, nil
}

// SendText sends one message per destination, concurrently. Dry-run numbers
// replace the whole destination list. Every dispatched send runs to
// completion; the first failure is returned.
func (g *Gateway) SendText(ctx context.Context, params provider.MessageParams, to ...string) ([]*provider.Message, error) {
	if g.dry.Skip {
		g.log.WithField("to", to).Debug("[dry-run] skipping the text")
		return []*provider.Message{}, nil
	}

	destinations := compact(to)
	if len(g.dry.Numbers) > 0 {
		destinations = append([]string(nil), g.dry.Numbers...)
	}

	template := params.WithDefaults(g.textDefaults)
	if template.StatusCallback != "" {
		resolved, err := g.resolve(template.StatusCallback)
		if err != nil {
			return nil, err
		}
		template.StatusCallback = resolved
	}

	results := make([]*provider.Message, len(destinations))
	var eg errgroup.Group
	for i, phone := range destinations {
		i, msg := i, template
		msg.To = g.normalize(phone)
		eg.Go(func() error {
			sent, err := g.provider.SendMessage(ctx, msg)
			if err != nil {
				return err
			}
			results[i] = sent
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, eris.Wrap(err, "failed to send text")
	}
	return results, nil
}

// FetchCall gets a call's data
func (g *Gateway) FetchCall(ctx context.Context, callSID string) (*provider.Call, error) {
	call, err := g.provider.FetchCall(ctx, callSID)
	if err != nil {
		return nil, eris.Wrap(err, "failed to fetch call")
	}
	return call, nil
}

// ApplyCallUpdate updates a call through its handle
func (g *Gateway) ApplyCallUpdate(ctx context.Context, h CallHandle, changes provider.CallUpdate) error {
	if err := h.Update(ctx, changes); err != nil {
		return eris.Wrapf(err, "failed to update call %s", h.SID())
	}
	return nil
}

// normalize formats a destination as E.164 when a region is configured.
// Numbers that do not parse are sent as given.
func (g *Gateway) normalize(number string) string {
	if g.region == "" {
		return number
	}
	parsed, err := phonenumbers.Parse(number, g.region)
	if err != nil || !phonenumbers.IsValidNumber(parsed) {
		return number
	}
	return phonenumbers.Format(parsed, phonenumbers.E164)
}

func firstNonEmpty(in []string) string {
	for _, s := range in {
		if s != "" {
			return s
		}
	}
	return ""
}

func compact(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

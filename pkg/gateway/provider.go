package gateway

import (
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"

	"github.com/birddigital/callmanager/pkg/config"
	"github.com/birddigital/callmanager/pkg/provider"
	"github.com/birddigital/callmanager/pkg/signalwire"
	"github.com/birddigital/callmanager/pkg/twilio"
)

// NewProvider builds the provider backend named by cfg.Provider
func NewProvider(cfg *config.Config, log logrus.FieldLogger) (provider.Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, eris.Wrap(err, "invalid provider configuration")
	}

	switch strings.ToLower(cfg.Provider) {
	case config.ProviderTwilio:
		var opts []twilio.Option
		if log != nil {
			opts = append(opts, twilio.WithLogger(log))
		}
		return twilio.New(cfg.AccountID, cfg.AuthToken, opts...), nil
	default:
		opts := []signalwire.Option{signalwire.WithRateLimit(cfg.RequestsPerSecond)}
		if log != nil {
			opts = append(opts, signalwire.WithLogger(log))
		}
		if cfg.APIHost != "" {
			opts = append(opts, signalwire.WithBaseURL(cfg.APIHost))
		}
		return signalwire.NewClient(cfg.AccountID, cfg.AuthToken, cfg.Space, opts...), nil
	}
}

// HostURL returns a copy of the base callback URL
func (g *Gateway) HostURL() *url.URL {
	u := *g.host
	return &u
}

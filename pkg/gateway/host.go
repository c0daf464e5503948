package gateway

import (
	"net/url"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/birddigital/callmanager/pkg/config"
)

// ResolveHost builds the base URL that relative callback URLs are resolved
// against. Priority: override (environment), configured hostname, then the
// machine hostname over plain http. Credentials, when given, are embedded in
// the authority.
func ResolveHost(override, configured string, auth *config.BasicAuth, hostname func() (string, error)) (*url.URL, error) {
	raw := override
	if raw == "" {
		raw = configured
	}
	if raw == "" {
		name, err := hostname()
		if err != nil {
			return nil, eris.Wrap(err, "failed to determine hostname")
		}
		raw = "http://" + name
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}

	host, err := url.Parse(raw)
	if err != nil {
		return nil, eris.Wrapf(err, "invalid callback host %q", raw)
	}
	if host.Host == "" {
		return nil, eris.Errorf("callback host %q has no host component", raw)
	}
	if auth != nil {
		host.User = url.UserPassword(auth.Username, auth.Password)
	}
	if host.Path == "" {
		host.Path = "/"
	}
	return host, nil
}

// resolve resolves ref against the base host. Absolute refs are returned as is.
func (g *Gateway) resolve(ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", eris.Wrapf(err, "invalid callback URL %q", ref)
	}
	return g.host.ResolveReference(u).String(), nil
}

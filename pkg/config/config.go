// Package config loads call manager configuration from a YAML file, a .env
// file and the process environment, in that order of precedence (lowest first).
package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/birddigital/callmanager/pkg/provider"
)

// Supported provider backends
const (
	ProviderSignalWire = "signalwire"
	ProviderTwilio     = "twilio"
)

// HostnameEnv overrides every other source of the callback base host
const HostnameEnv = "TELEPHONY_HOSTNAME"

// BasicAuth credentials embedded into callback URLs
type BasicAuth struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Config is the complete configuration surface
type Config struct {
	// Provider account
	Provider  string `yaml:"provider"`
	AccountID string `yaml:"sid"`
	AuthToken string `yaml:"token"`
	Space     string `yaml:"space"`    // SignalWire space host, e.g. example.signalwire.com
	APIHost   string `yaml:"api_host"` // full API root override

	// Callback URL construction
	Hostname string     `yaml:"hostname"`
	Auth     *BasicAuth `yaml:"auth"`

	// Dry run: absent, true, a number or a list of numbers
	Dry DryRun `yaml:"dry"`

	// Defaults merged into every call / text
	Call provider.CallParams    `yaml:"call"`
	Text provider.MessageParams `yaml:"text"`

	// Lifecycle timing, seconds
	Timeout    float64 `yaml:"timeout"`
	RetryDelay float64 `yaml:"retry_delay"`

	// Destination normalisation region (ISO 3166), empty disables it
	Region string `yaml:"region"`

	// Outgoing API request pacing, zero disables it
	RequestsPerSecond float64 `yaml:"requests_per_second"`

	// Event fan-out
	RedisURL     string `yaml:"redis_url"`
	RedisChannel string `yaml:"redis_channel"`

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Webhook server
	ListenAddr       string `yaml:"listen_addr"`
	AnswerScript     string `yaml:"answer_script"`
	ValidateWebhooks bool   `yaml:"validate_webhooks"`

	// HostOverride is read from TELEPHONY_HOSTNAME, never from the file
	HostOverride string `yaml:"-"`
}

// Default returns a configuration with every optional field set
func Default() *Config {
	return &Config{
		Provider:     ProviderSignalWire,
		RetryDelay:   3600,
		RedisChannel: "callmanager:events",
		LogLevel:     "info",
		LogFormat:    "text",
		ListenAddr:   ":8080",
	}
}

// Load reads configuration. path may be empty, in which case only the
// environment is consulted. A missing .env file is not an error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrap(err, "failed to load .env")
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to read config %s", path)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, eris.Wrapf(err, "failed to parse config %s", path)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *float64) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return eris.Wrapf(err, "invalid %s", key)
		}
		*dst = f
		return nil
	}

	str("TELEPHONY_PROVIDER", &c.Provider)
	str("TELEPHONY_SID", &c.AccountID)
	str("TELEPHONY_TOKEN", &c.AuthToken)
	str("TELEPHONY_SPACE", &c.Space)
	str("TELEPHONY_API_HOST", &c.APIHost)
	str("TELEPHONY_CALLBACK_HOST", &c.Hostname)
	str(HostnameEnv, &c.HostOverride)
	str("TELEPHONY_REGION", &c.Region)
	str("TELEPHONY_REDIS_URL", &c.RedisURL)
	str("TELEPHONY_REDIS_CHANNEL", &c.RedisChannel)
	str("TELEPHONY_LOG_LEVEL", &c.LogLevel)
	str("TELEPHONY_LOG_FORMAT", &c.LogFormat)
	str("TELEPHONY_LISTEN_ADDR", &c.ListenAddr)
	str("TELEPHONY_CALL_FROM", &c.Call.From)
	str("TELEPHONY_TEXT_FROM", &c.Text.From)

	if v, ok := lookup("TELEPHONY_DRY_RUN"); ok {
		c.Dry = ParseDryRun(v)
	}

	for key, dst := range map[string]*float64{
		"TELEPHONY_TIMEOUT":             &c.Timeout,
		"TELEPHONY_RETRY_DELAY":         &c.RetryDelay,
		"TELEPHONY_REQUESTS_PER_SECOND": &c.RequestsPerSecond,
	} {
		if err := num(key, dst); err != nil {
			return err
		}
	}

	user, hasUser := lookup("TELEPHONY_AUTH_USERNAME")
	pass, _ := lookup("TELEPHONY_AUTH_PASSWORD")
	if hasUser && user != "" {
		c.Auth = &BasicAuth{Username: user, Password: pass}
	}
	return nil
}

// Validate checks that the provider can be reached
func (c *Config) Validate() error {
	switch strings.ToLower(c.Provider) {
	case ProviderSignalWire:
		if c.Space == "" && c.APIHost == "" {
			return eris.New("space or api_host is required for signalwire")
		}
	case ProviderTwilio:
	default:
		return eris.Errorf("unknown provider %q", c.Provider)
	}
	if c.AccountID == "" {
		return eris.New("sid not configured")
	}
	if c.AuthToken == "" {
		return eris.New("token not configured")
	}
	if c.Timeout < 0 || c.RetryDelay < 0 {
		return eris.New("timeout and retry_delay must not be negative")
	}
	return nil
}

// CallTimeout is how long a placed call may run before it is hung up.
// Zero disables the timer.
func (c *Config) CallTimeout() time.Duration {
	return seconds(c.Timeout)
}

// RetryDelayDuration is the cool-down applied after a failed call
func (c *Config) RetryDelayDuration() time.Duration {
	return seconds(c.RetryDelay)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

package manager

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/birddigital/callmanager/pkg/config"
)

// Option configures a Manager
type Option func(*Manager)

// WithCallTimeout hangs calls up once d has elapsed after placement. Zero
// disables the timer.
func WithCallTimeout(d time.Duration) Option {
	return func(m *Manager) { m.timeout = d }
}

// WithRetryDelay sets how long a number stays listed after a failed call
func WithRetryDelay(d time.Duration) Option {
	return func(m *Manager) { m.retryDelay = d }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLogger sets the logger
func WithLogger(log logrus.FieldLogger) Option {
	return func(m *Manager) { m.log = log }
}

// ConfigOptions returns the options described by cfg
func ConfigOptions(cfg *config.Config) []Option {
	return []Option{
		WithCallTimeout(cfg.CallTimeout()),
		WithRetryDelay(cfg.RetryDelayDuration()),
	}
}

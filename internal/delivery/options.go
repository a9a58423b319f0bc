package delivery

import (
	"time"

	"feedbackhub/internal/models"

	"github.com/rs/zerolog"
)

// DefaultPollInterval is how often a polling adapter re-fetches history
const DefaultPollInterval = 5 * time.Second

// Option configures an Adapter
type Option func(*Adapter)

// WithPollInterval sets the poll period used after a downgrade
func WithPollInterval(d time.Duration) Option {
	return func(a *Adapter) {
		if d > 0 {
			a.pollInterval = d
		}
	}
}

// WithOnChange registers a callback run on the adapter's goroutine with a
// copy of the view after every change. It must not call back into the
// adapter's Send or Close.
func WithOnChange(fn func([]models.Reply)) Option {
	return func(a *Adapter) { a.onChange = fn }
}

// WithOnState registers a callback run on every state transition
func WithOnState(fn func(State)) Option {
	return func(a *Adapter) { a.onState = fn }
}

// WithLogger sets the adapter logger
func WithLogger(logger zerolog.Logger) Option {
	return func(a *Adapter) { a.logger = logger }
}

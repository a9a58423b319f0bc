package widget

import (
	"feedbackhub/internal/delivery"

	"github.com/rs/zerolog"
)

// Option configures a Session
type Option func(*Session)

// WithIdentityStore sets where the visitor email is remembered
func WithIdentityStore(store IdentityStore) Option {
	return func(s *Session) { s.identities = store }
}

// WithConsole sets the console buffer attached to submissions
func WithConsole(buf *ConsoleBuffer) Option {
	return func(s *Session) { s.console = buf }
}

// WithEnvironment sets the probe read at submission time
func WithEnvironment(probe func() Environment) Option {
	return func(s *Session) { s.environment = probe }
}

// WithDeliveryOptions configures the adapter opened for the detail view.
// Callbacks among them must not call back into the session.
func WithDeliveryOptions(opts ...delivery.Option) Option {
	return func(s *Session) { s.adapterOpts = append(s.adapterOpts, opts...) }
}

// WithLogger sets the session logger
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
		s.adapterOpts = append(s.adapterOpts, delivery.WithLogger(logger))
	}
}

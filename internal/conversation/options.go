package conversation

import (
	"time"

	"feedbackhub/internal/email"
	"feedbackhub/internal/realtime"

	"github.com/rs/zerolog"
)

// Option configures a Service
type Option func(*Service)

// WithPublisher announces committed replies to the live feed
func WithPublisher(p realtime.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithNotifier enables operator email notifications for visitor replies
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithLogger sets the service logger
func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l.With().Str("module", "conversation").Logger() }
}

// WithDashboardURL sets the base URL linked from notification emails
func WithDashboardURL(u string) Option {
	return func(s *Service) { s.dashboardURL = u }
}

// WithDeliveryCallback receives the outcome of every notification attempt
func WithDeliveryCallback(fn func(email.ReplyNotification, error)) Option {
	return func(s *Service) { s.onDelivery = fn }
}

// WithNotifyTimeout bounds a single notification attempt
func WithNotifyTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.notifyTimeout = d
		}
	}
}

func withClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Package realtime turns committed reply inserts into per-thread event streams.
//
// Three backends implement Feed: an in-process Hub, a Postgres LISTEN/NOTIFY
// bridge fed by the replies insert trigger, and Redis pub/sub for deployments
// that run several API processes without Postgres.
package realtime

import (
	"context"
	"sync"

	"feedbackhub/internal/apperr"
	"feedbackhub/internal/models"
)

// ErrFeedClosed is returned when subscribing to a feed that has shut down
var ErrFeedClosed = apperr.New(apperr.KindTransientIO, "realtime feed closed")

// Feed delivers each reply inserted into a thread to that thread's subscribers,
// at least once and in insert order per subscription.
type Feed interface {
	Subscribe(ctx context.Context, threadID string) (*Subscription, error)
}

// Publisher announces a committed reply to the feed. Backends whose storage
// emits insert events on its own treat Publish as a no-op.
type Publisher interface {
	Publish(ctx context.Context, reply models.Reply) error
}

// Subscription is one viewer's binding to a thread's insert events.
// C is closed when the subscription ends for any reason: Close, context
// cancellation, or the backend dropping a subscriber that fell behind.
type Subscription struct {
	C <-chan models.Reply

	done    chan struct{}
	once    sync.Once
	release func()
}

func newSubscription(ctx context.Context, c <-chan models.Reply, release func()) *Subscription {
	s := &Subscription{
		C:       c,
		done:    make(chan struct{}),
		release: release,
	}
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.done:
		}
	}()
	return s
}

// Close releases the subscription; safe to call more than once
func (s *Subscription) Close() {
	s.once.Do(func() {
		close(s.done)
		if s.release != nil {
			s.release()
		}
	})
}

// Done is closed once Close has been called
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

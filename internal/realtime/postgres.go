package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"feedbackhub/internal/database"
	"feedbackhub/internal/models"

	"github.com/lib/pq"
	"github.com/rs/zerolog"
)

const pgPingInterval = 90 * time.Second

// ReplyLoader fetches a committed reply by id
type ReplyLoader func(ctx context.Context, replyID string) (models.Reply, error)

type insertNotification struct {
	ID       string `json:"id"`
	ThreadID string `json:"thread_id"`
}

// PGFeed bridges the replies insert trigger (LISTEN/NOTIFY) into a Hub.
// The trigger publishes, so Publish is a no-op.
type PGFeed struct {
	hub      *Hub
	listener *pq.Listener
	load     ReplyLoader
	logger   zerolog.Logger
}

// NewPGFeed opens a dedicated LISTEN connection on the reply insert channel
func NewPGFeed(databaseURL string, load ReplyLoader, logger zerolog.Logger) (*PGFeed, error) {
	log := logger.With().Str("module", "pgfeed").Logger()

	listener := pq.NewListener(databaseURL, 10*time.Second, time.Minute,
		func(ev pq.ListenerEventType, err error) {
			switch ev {
			case pq.ListenerEventConnectionAttemptFailed:
				log.Warn().Err(err).Msg("LISTEN connection attempt failed")
			case pq.ListenerEventDisconnected:
				log.Warn().Err(err).Msg("LISTEN connection lost")
			case pq.ListenerEventReconnected:
				log.Info().Msg("LISTEN connection re-established")
			}
		})

	if err := listener.Listen(database.ReplyInsertedChannel); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("failed to listen on %s: %w", database.ReplyInsertedChannel, err)
	}

	return &PGFeed{
		hub:      NewHub(0),
		listener: listener,
		load:     load,
		logger:   log,
	}, nil
}

// Run pumps notifications into the hub until ctx is cancelled
func (f *PGFeed) Run(ctx context.Context) {
	ticker := time.NewTicker(pgPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-f.listener.Notify:
			if !ok {
				f.hub.DropAll()
				return
			}
			if n == nil {
				// Reconnected: notifications sent while disconnected are gone,
				// so every viewer has to resynchronize.
				f.hub.DropAll()
				continue
			}
			f.handle(ctx, n.Extra)
		case <-ticker.C:
			go func() {
				if err := f.listener.Ping(); err != nil {
					f.logger.Warn().Err(err).Msg("LISTEN ping failed")
				}
			}()
		}
	}
}

func (f *PGFeed) handle(ctx context.Context, payload string) {
	note, err := decodeInsertNotification(payload)
	if err != nil {
		f.logger.Error().Err(err).Str("payload", payload).Msg("Malformed reply notification")
		return
	}
	if f.hub.Size(note.ThreadID) == 0 {
		return
	}

	loadCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	reply, err := f.load(loadCtx, note.ID)
	if err != nil {
		f.logger.Error().Err(err).Str("reply_id", note.ID).Msg("Failed to load notified reply")
		return
	}
	f.hub.Dispatch(reply)
}

func decodeInsertNotification(payload string) (insertNotification, error) {
	var note insertNotification
	if err := json.Unmarshal([]byte(payload), &note); err != nil {
		return insertNotification{}, err
	}
	if note.ID == "" || note.ThreadID == "" {
		return insertNotification{}, fmt.Errorf("notification missing id or thread_id")
	}
	return note, nil
}

// Subscribe registers a listener for one thread
func (f *PGFeed) Subscribe(ctx context.Context, threadID string) (*Subscription, error) {
	return f.hub.Subscribe(ctx, threadID)
}

// Publish is a no-op; the database trigger announces inserts
func (f *PGFeed) Publish(context.Context, models.Reply) error {
	return nil
}

// Close stops listening and drops every subscriber
func (f *PGFeed) Close() error {
	_ = f.hub.Close()
	return f.listener.Close()
}

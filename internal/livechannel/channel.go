// Package livechannel streams a thread's new replies to one viewer over
// Server-Sent Events.
//
// A stream opens with a "connected" event, then carries one "new-reply" event
// per reply inserted into the thread and a ": heartbeat" comment on a fixed
// interval. Delivery is not guaranteed: when the feed drops the subscriber
// the stream ends and the client resynchronizes from the full history.
package livechannel

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"feedbackhub/internal/conversation"
	"feedbackhub/internal/models"
	"feedbackhub/internal/realtime"

	"github.com/rs/zerolog"
)

// Event names on the wire
const (
	EventConnected = "connected"
	EventNewReply  = "new-reply"
)

// DefaultHeartbeat is the liveness interval used when none is configured
const DefaultHeartbeat = 30 * time.Second

// Authorizer performs the thread ownership check shared with the reply endpoints
type Authorizer interface {
	Authorize(ctx context.Context, caller conversation.Caller, threadID string) error
}

// ConnectedPayload is the data of the connected event
type ConnectedPayload struct {
	ThreadID string `json:"thread_id"`
}

// Channel serves thread subscriptions
type Channel struct {
	auth      Authorizer
	feed      realtime.Feed
	heartbeat time.Duration
	logger    zerolog.Logger
}

// New creates a live delivery channel
func New(auth Authorizer, feed realtime.Feed, heartbeat time.Duration, logger zerolog.Logger) *Channel {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	return &Channel{
		auth:      auth,
		feed:      feed,
		heartbeat: heartbeat,
		logger:    logger.With().Str("module", "livechannel").Logger(),
	}
}

// Serve authorizes the caller and streams the thread until ctx ends, the
// client goes away, or the feed drops the subscription. Errors returned
// before the first byte is written can still be mapped to a status code;
// once streaming has started Serve returns nil.
func (ch *Channel) Serve(ctx context.Context, w http.ResponseWriter, caller conversation.Caller, threadID string) error {
	if err := ch.auth.Authorize(ctx, caller, threadID); err != nil {
		return err
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		return fmt.Errorf("streaming unsupported by response writer")
	}

	// Subscribe before announcing the stream so nothing inserted after
	// "connected" can be missed.
	sub, err := ch.feed.Subscribe(ctx, threadID)
	if err != nil {
		return err
	}
	defer sub.Close()

	ticker := time.NewTicker(ch.heartbeat)
	defer ticker.Stop()

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	log := ch.logger.With().Str("thread_id", threadID).Logger()
	log.Debug().Msg("Live subscription opened")
	defer log.Debug().Msg("Live subscription closed")

	if err := writeEvent(w, EventConnected, ConnectedPayload{ThreadID: threadID}); err != nil {
		return nil
	}
	flusher.Flush()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-ticker.C:
			if _, err := io.WriteString(w, ": heartbeat\n\n"); err != nil {
				return nil
			}
			flusher.Flush()

		case reply, ok := <-sub.C:
			if !ok {
				log.Info().Msg("Feed ended subscription")
				return nil
			}
			if reply.ThreadID != threadID {
				continue
			}
			if err := writeEvent(w, EventNewReply, reply); err != nil {
				return nil
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w io.Writer, name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
	return err
}

// DecodeReply parses the data of a new-reply event
func DecodeReply(data []byte) (models.Reply, error) {
	var reply models.Reply
	if err := json.Unmarshal(data, &reply); err != nil {
		return models.Reply{}, err
	}
	if reply.ID == "" {
		return models.Reply{}, fmt.Errorf("new-reply event without id")
	}
	return reply, nil
}

package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"feedbackhub/internal/apperr"
	"feedbackhub/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const redisChannelPrefix = "feedbackhub:thread:"

// NewRedis creates a Redis client for the realtime feed
func NewRedis(addr string, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// RedisFeed fans replies out across API processes through Redis pub/sub.
// The conversation service publishes after each committed append.
type RedisFeed struct {
	rdb     *redis.Client
	bufSize int
	logger  zerolog.Logger
}

// NewRedisFeed wraps a Redis client
func NewRedisFeed(rdb *redis.Client, logger zerolog.Logger) *RedisFeed {
	return &RedisFeed{
		rdb:     rdb,
		bufSize: defaultBufferSize,
		logger:  logger.With().Str("module", "redisfeed").Logger(),
	}
}

func threadChannel(threadID string) string {
	return redisChannelPrefix + threadID
}

// Publish announces a committed reply on the thread's channel
func (f *RedisFeed) Publish(ctx context.Context, reply models.Reply) error {
	payload, err := json.Marshal(reply)
	if err != nil {
		return err
	}
	if err := f.rdb.Publish(ctx, threadChannel(reply.ThreadID), payload).Err(); err != nil {
		return apperr.Wrap(apperr.KindTransientIO, err, "failed to publish reply")
	}
	return nil
}

// Subscribe opens a pub/sub subscription to one thread's channel. It returns
// only after Redis has confirmed the subscription.
func (f *RedisFeed) Subscribe(ctx context.Context, threadID string) (*Subscription, error) {
	ps := f.rdb.Subscribe(ctx, threadChannel(threadID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, apperr.Wrap(apperr.KindTransientIO, err, "failed to subscribe to thread channel")
	}

	out := make(chan models.Reply, f.bufSize)
	sub := newSubscription(ctx, out, func() { _ = ps.Close() })

	go func() {
		defer close(out)
		msgs := ps.Channel()
		for {
			select {
			case <-sub.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				reply, err := decodeReply(msg.Payload)
				if err != nil {
					f.logger.Error().Err(err).Str("channel", msg.Channel).Msg("Malformed reply message")
					continue
				}
				select {
				case out <- reply:
				default:
					// Fell behind: end the stream so the viewer resynchronizes.
					f.logger.Warn().Str("thread_id", threadID).Msg("Dropping slow realtime subscriber")
					sub.Close()
					return
				}
			}
		}
	}()

	return sub, nil
}

func decodeReply(payload string) (models.Reply, error) {
	var reply models.Reply
	if err := json.Unmarshal([]byte(payload), &reply); err != nil {
		return models.Reply{}, err
	}
	if reply.ID == "" || reply.ThreadID == "" {
		return models.Reply{}, fmt.Errorf("reply message missing id or thread_id")
	}
	return reply, nil
}

// Close closes the Redis client
func (f *RedisFeed) Close() error {
	return f.rdb.Close()
}

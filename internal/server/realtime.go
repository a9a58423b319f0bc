package server

import (
	"context"
	"fmt"

	"feedbackhub/internal/config"
	"feedbackhub/internal/database"
	"feedbackhub/internal/realtime"

	"github.com/rs/zerolog"
)

// Realtime is the live feed selected by configuration
type Realtime struct {
	Feed      realtime.Feed
	Publisher realtime.Publisher
	close     func() error
}

// Close shuts the feed down, ending every open stream
func (r *Realtime) Close() error {
	if r.close == nil {
		return nil
	}
	return r.close()
}

// OpenRealtime builds the configured feed backend. The postgres backend pumps
// notifications until ctx is cancelled.
func OpenRealtime(ctx context.Context, cfg *config.Config, replies *database.ReplyStore, logger zerolog.Logger) (*Realtime, error) {
	switch cfg.RealtimeBackend {
	case config.RealtimeMemory, "":
		hub := realtime.NewHub(0)
		return &Realtime{Feed: hub, Publisher: hub, close: hub.Close}, nil

	case config.RealtimePostgres:
		if database.DetectDriver(cfg.DatabaseURL) != database.DriverPostgres {
			return nil, fmt.Errorf("realtime backend %q requires a postgres DATABASE_URL", cfg.RealtimeBackend)
		}
		if replies == nil {
			return nil, fmt.Errorf("reply store is required for realtime backend %q", cfg.RealtimeBackend)
		}
		feed, err := realtime.NewPGFeed(cfg.DatabaseURL, replies.GetReply, logger)
		if err != nil {
			return nil, err
		}
		go feed.Run(ctx)
		return &Realtime{Feed: feed, Publisher: feed, close: feed.Close}, nil

	case config.RealtimeRedis:
		rdb := realtime.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		feed := realtime.NewRedisFeed(rdb, logger)
		return &Realtime{Feed: feed, Publisher: feed, close: feed.Close}, nil

	default:
		return nil, fmt.Errorf("unknown realtime backend %q", cfg.RealtimeBackend)
	}
}

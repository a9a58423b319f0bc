// Package delivery keeps a live, de-duplicated, ordered view of one thread's
// replies, preferring a push stream and degrading to polling.
package delivery

import (
	"context"

	"feedbackhub/internal/models"
)

// StreamEventKind tags what arrived on a push stream
type StreamEventKind int

const (
	// StreamConnected is the channel's control event after subscribing
	StreamConnected StreamEventKind = iota
	// StreamReply carries one newly inserted reply
	StreamReply
	// StreamError reports that the stream dropped; no events follow it
	StreamError
)

// StreamEvent is one item delivered by a Stream
type StreamEvent struct {
	Kind  StreamEventKind
	Reply models.Reply
	Err   error
}

// Stream is an open push subscription for one thread. Events is closed when
// the stream ends for any reason.
type Stream interface {
	Events() <-chan StreamEvent
	Close() error
}

// Source is the conversation backend an Adapter reads from and writes to
type Source interface {
	ListReplies(ctx context.Context, threadID string) ([]models.Reply, error)
	AppendReply(ctx context.Context, threadID, body, senderIdentity string) (models.Reply, error)
	Subscribe(ctx context.Context, threadID string) (Stream, error)
	// SupportsPush reports whether Subscribe can be used at all
	SupportsPush() bool
}

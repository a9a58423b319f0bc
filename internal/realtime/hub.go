package realtime

import (
	"context"
	"sync"

	"feedbackhub/internal/models"
)

const defaultBufferSize = 32

type hubListener struct {
	ch chan models.Reply
}

// Hub is an in-memory fan-out dispatcher keyed by thread id. Each listener
// receives events through its own buffered channel. A listener whose buffer
// is full is dropped and its channel closed, so the viewer notices the gap
// and falls back to re-fetching instead of silently missing a reply.
type Hub struct {
	mu        sync.Mutex
	listeners map[string]map[uint64]*hubListener
	nextID    uint64
	bufSize   int
	closed    bool
}

// NewHub constructs a hub with the given per-listener buffer size.
// If bufSize <= 0, a default of 32 is used.
func NewHub(bufSize int) *Hub {
	if bufSize <= 0 {
		bufSize = defaultBufferSize
	}
	return &Hub{
		listeners: make(map[string]map[uint64]*hubListener),
		bufSize:   bufSize,
	}
}

// Subscribe registers a listener for one thread
func (h *Hub) Subscribe(ctx context.Context, threadID string) (*Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l := &hubListener{ch: make(chan models.Reply, h.bufSize)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrFeedClosed
	}
	id := h.nextID
	h.nextID++
	if h.listeners[threadID] == nil {
		h.listeners[threadID] = make(map[uint64]*hubListener)
	}
	h.listeners[threadID][id] = l
	h.mu.Unlock()

	return newSubscription(ctx, l.ch, func() { h.remove(threadID, id) }), nil
}

// Publish dispatches a committed reply; it never fails
func (h *Hub) Publish(_ context.Context, reply models.Reply) error {
	h.Dispatch(reply)
	return nil
}

// Dispatch delivers a reply to every listener of its thread. Calls are
// serialized so each listener observes replies in dispatch order.
func (h *Hub) Dispatch(reply models.Reply) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, l := range h.listeners[reply.ThreadID] {
		select {
		case l.ch <- reply:
		default:
			h.removeLocked(reply.ThreadID, id)
		}
	}
}

// Size returns the number of listeners for a thread
func (h *Hub) Size(threadID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.listeners[threadID])
}

// DropAll closes every listener; used when the upstream feed may have lost events
func (h *Hub) DropAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for threadID, ls := range h.listeners {
		for id := range ls {
			h.removeLocked(threadID, id)
		}
	}
}

// Close drops every listener and refuses new subscriptions
func (h *Hub) Close() error {
	h.DropAll()
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	return nil
}

func (h *Hub) remove(threadID string, id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(threadID, id)
}

func (h *Hub) removeLocked(threadID string, id uint64) {
	ls, ok := h.listeners[threadID]
	if !ok {
		return
	}
	l, ok := ls[id]
	if !ok {
		return
	}
	delete(ls, id)
	close(l.ch)
	if len(ls) == 0 {
		delete(h.listeners, threadID)
	}
}

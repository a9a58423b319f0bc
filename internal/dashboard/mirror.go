// Package dashboard follows the threads an operator has expanded, each with its
// own live reply view.
package dashboard

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"feedbackhub/internal/apperr"
	"feedbackhub/internal/delivery"
	"feedbackhub/internal/models"

	"github.com/rs/zerolog"
)

// ErrNotExpanded is returned for actions on a thread card that is not open
var ErrNotExpanded = errors.New("dashboard: thread not expanded")

// ErrClosed is returned after the mirror has been closed
var ErrClosed = errors.New("dashboard: mirror closed")

// Mirror holds one delivery adapter per expanded thread card. Cards are
// independent: collapsing one never touches another.
type Mirror struct {
	mu       sync.Mutex
	src      delivery.Source
	opts     []delivery.Option
	logger   zerolog.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	adapters map[string]*delivery.Adapter
	closed   bool
}

// NewMirror creates a mirror reading through src, normally an operator
// delivery.HTTPSource
func NewMirror(src delivery.Source, logger zerolog.Logger, opts ...delivery.Option) *Mirror {
	ctx, cancel := context.WithCancel(context.Background())
	logger = logger.With().Str("module", "dashboard").Logger()
	return &Mirror{
		src:      src,
		opts:     append([]delivery.Option{delivery.WithLogger(logger)}, opts...),
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		adapters: make(map[string]*delivery.Adapter),
	}
}

// Expand opens a thread card. Expanding a live card is a no-op; a card whose
// adapter stopped on a terminal error is reopened.
func (m *Mirror) Expand(threadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if a, ok := m.adapters[threadID]; ok {
		if a.State() != delivery.StateClosed {
			return nil
		}
		a.Close()
		m.logger.Debug().Err(a.Err()).Str("thread_id", threadID).Msg("Reopening stopped thread")
	}
	m.adapters[threadID] = delivery.Open(m.ctx, m.src, threadID, m.opts...)
	m.logger.Debug().Str("thread_id", threadID).Msg("Thread expanded")
	return nil
}

// Collapse closes a thread card and waits for its adapter to stop
func (m *Mirror) Collapse(threadID string) {
	m.mu.Lock()
	a, ok := m.adapters[threadID]
	delete(m.adapters, threadID)
	m.mu.Unlock()
	if ok {
		a.Close()
	}
}

// Reply posts an operator reply into an expanded thread
func (m *Mirror) Reply(ctx context.Context, threadID, body string) (models.Reply, error) {
	a, err := m.adapter(threadID)
	if err != nil {
		return models.Reply{}, err
	}
	if strings.TrimSpace(body) == "" {
		return models.Reply{}, apperr.Validation("body", "Reply cannot be empty")
	}
	return a.Send(ctx, body, "")
}

// Replies returns the current view of an expanded thread
func (m *Mirror) Replies(threadID string) ([]models.Reply, error) {
	a, err := m.adapter(threadID)
	if err != nil {
		return nil, err
	}
	return a.Snapshot(), nil
}

// State returns the delivery state of an expanded thread
func (m *Mirror) State(threadID string) (delivery.State, error) {
	a, err := m.adapter(threadID)
	if err != nil {
		return delivery.StateClosed, err
	}
	return a.State(), nil
}

// Expanded lists the open thread cards
func (m *Mirror) Expanded() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.adapters))
	for id := range m.adapters {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Close collapses every card. The mirror cannot be reused.
func (m *Mirror) Close() {
	m.mu.Lock()
	adapters := m.adapters
	m.adapters = make(map[string]*delivery.Adapter)
	m.closed = true
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, a := range adapters {
		wg.Add(1)
		go func(a *delivery.Adapter) {
			defer wg.Done()
			a.Close()
		}(a)
	}
	wg.Wait()
	m.cancel()
}

func (m *Mirror) adapter(threadID string) (*delivery.Adapter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	a, ok := m.adapters[threadID]
	if !ok {
		return nil, ErrNotExpanded
	}
	return a, nil
}

package delivery

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"feedbackhub/internal/apperr"
	"feedbackhub/internal/models"

	"github.com/rs/zerolog"
)

// State is a step of the adapter lifecycle
type State int

const (
	StateInitial State = iota
	StateFetching
	StatePushAttempting
	StatePushActive
	StatePollActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInitial:
		return "initial"
	case StateFetching:
		return "fetching"
	case StatePushAttempting:
		return "push-attempting"
	case StatePushActive:
		return "push-active"
	case StatePollActive:
		return "poll-active"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

var errStreamEnded = errors.New("delivery: stream ended")

// mode is either pushMode or pollMode, never both
type mode interface {
	events() <-chan StreamEvent
	ticks() <-chan time.Time
	stop()
}

type pushMode struct{ stream Stream }

func (m pushMode) events() <-chan StreamEvent { return m.stream.Events() }
func (pushMode) ticks() <-chan time.Time      { return nil }
func (m pushMode) stop()                      { _ = m.stream.Close() }

type pollMode struct{ ticker *time.Ticker }

func (pollMode) events() <-chan StreamEvent { return nil }
func (m pollMode) ticks() <-chan time.Time  { return m.ticker.C }
func (m pollMode) stop()                    { m.ticker.Stop() }

// Adapter maintains the ordered reply view of one thread. A single goroutine
// owns the view; push events, poll results and local sends are all applied
// there.
type Adapter struct {
	threadID     string
	src          Source
	pollInterval time.Duration
	onChange     func([]models.Reply)
	onState      func(State)
	logger       zerolog.Logger

	cmds   chan func()
	cancel context.CancelFunc
	done   chan struct{}

	// run loop only
	view []models.Reply
	ids  map[string]struct{}
	mode mode

	mu       sync.RWMutex
	snapshot []models.Reply
	state    State
	err      error
}

// Open starts an adapter for threadID. It fetches history, then subscribes
// or polls in the background until Close or ctx is cancelled.
func Open(ctx context.Context, src Source, threadID string, opts ...Option) *Adapter {
	a := &Adapter{
		threadID:     threadID,
		src:          src,
		pollInterval: DefaultPollInterval,
		logger:       zerolog.Nop(),
		cmds:         make(chan func()),
		done:         make(chan struct{}),
		ids:          make(map[string]struct{}),
		snapshot:     []models.Reply{},
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With().Str("module", "delivery").Str("thread_id", threadID).Logger()

	ctx, a.cancel = context.WithCancel(ctx)
	go a.run(ctx)
	return a
}

// ThreadID returns the thread this adapter follows
func (a *Adapter) ThreadID() string { return a.threadID }

// Snapshot returns a copy of the current ordered view
func (a *Adapter) Snapshot() []models.Reply {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]models.Reply(nil), a.snapshot...)
}

// State returns the current lifecycle state
func (a *Adapter) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// Err returns the terminal error that closed the adapter, if any
func (a *Adapter) Err() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.err
}

// Done is closed once the adapter has fully stopped
func (a *Adapter) Done() <-chan struct{} { return a.done }

// Close stops the adapter and waits until its stream and timers are released.
// It is safe to call more than once.
func (a *Adapter) Close() {
	a.cancel()
	<-a.done
}

// Send appends a reply and merges the stored result into the view. A later
// push of the same reply is ignored by the id check.
func (a *Adapter) Send(ctx context.Context, body, senderIdentity string) (models.Reply, error) {
	reply, err := a.src.AppendReply(ctx, a.threadID, body, senderIdentity)
	if err != nil {
		return models.Reply{}, err
	}
	a.exec(func() { a.merge(reply) })
	return reply, nil
}

// exec runs fn on the adapter goroutine and waits for it. It is a no-op once
// the adapter has stopped.
func (a *Adapter) exec(fn func()) {
	ran := make(chan struct{})
	select {
	case a.cmds <- func() { fn(); close(ran) }:
	case <-a.done:
		return
	}
	select {
	case <-ran:
	case <-a.done:
	}
}

func (a *Adapter) run(ctx context.Context) {
	defer close(a.done)
	defer a.teardown()

	a.setState(StateFetching)
	if replies, err := a.src.ListReplies(ctx, a.threadID); err != nil {
		a.handleFetchError(ctx, err)
	} else {
		a.replace(replies)
	}
	if ctx.Err() != nil {
		return
	}

	if a.src.SupportsPush() {
		a.attemptPush(ctx)
	} else {
		a.downgrade(ctx, false)
	}
	if ctx.Err() != nil || a.mode == nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-a.cmds:
			fn()
		case ev, ok := <-a.mode.events():
			if !ok {
				ev = StreamEvent{Kind: StreamError, Err: errStreamEnded}
			}
			a.handleStream(ctx, ev)
		case <-a.mode.ticks():
			a.poll(ctx)
		}
	}
}

func (a *Adapter) attemptPush(ctx context.Context) {
	a.setState(StatePushAttempting)
	stream, err := a.src.Subscribe(ctx, a.threadID)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		a.logger.Warn().Err(err).Msg("Live channel unavailable, polling")
		a.downgrade(ctx, true)
		return
	}
	a.mode = pushMode{stream: stream}
}

func (a *Adapter) handleStream(ctx context.Context, ev StreamEvent) {
	switch ev.Kind {
	case StreamConnected:
		if a.State() == StatePushAttempting {
			a.setState(StatePushActive)
			a.catchUp(ctx)
		}
	case StreamReply:
		a.merge(ev.Reply)
	case StreamError:
		if ctx.Err() != nil {
			return
		}
		a.logger.Warn().Err(ev.Err).Msg("Live channel dropped, polling")
		a.downgrade(ctx, true)
	}
}

// downgrade switches to polling for the rest of the adapter's life
func (a *Adapter) downgrade(ctx context.Context, pollNow bool) {
	if a.mode != nil {
		a.mode.stop()
	}
	a.mode = pollMode{ticker: time.NewTicker(a.pollInterval)}
	a.setState(StatePollActive)
	if pollNow {
		a.poll(ctx)
	}
}

func (a *Adapter) poll(ctx context.Context) {
	replies, err := a.src.ListReplies(ctx, a.threadID)
	if err != nil {
		a.handleFetchError(ctx, err)
		return
	}
	a.replace(replies)
}

// catchUp merges replies committed between the initial fetch and the
// subscription taking effect
func (a *Adapter) catchUp(ctx context.Context) {
	replies, err := a.src.ListReplies(ctx, a.threadID)
	if err != nil {
		a.handleFetchError(ctx, err)
		return
	}
	changed := false
	for _, r := range replies {
		if a.insert(r) {
			changed = true
		}
	}
	if changed {
		a.publish()
	}
}

// handleFetchError keeps going on transient failures and stops the adapter on
// anything else.
func (a *Adapter) handleFetchError(ctx context.Context, err error) {
	if ctx.Err() != nil {
		return
	}
	if apperr.IsRetryable(err) {
		a.logger.Warn().Err(err).Msg("Failed to fetch replies, will retry")
		return
	}
	a.logger.Error().Err(err).Msg("Failed to fetch replies, closing")
	a.mu.Lock()
	a.err = err
	a.mu.Unlock()
	a.cancel()
}

func (a *Adapter) teardown() {
	if a.mode != nil {
		a.mode.stop()
	}
	a.setState(StateClosed)
}

// merge adds a pushed or locally sent reply unless its id is already shown
func (a *Adapter) merge(r models.Reply) {
	if a.insert(r) {
		a.publish()
	}
}

func (a *Adapter) insert(r models.Reply) bool {
	if _, ok := a.ids[r.ID]; ok {
		return false
	}
	a.ids[r.ID] = struct{}{}

	n := len(a.view)
	if n == 0 || a.view[n-1].Before(r) {
		a.view = append(a.view, r)
	} else {
		i := sort.Search(n, func(i int) bool { return r.Before(a.view[i]) })
		a.view = append(a.view, models.Reply{})
		copy(a.view[i+1:], a.view[i:])
		a.view[i] = r
	}
	return true
}

// replace swaps in an authoritative poll result
func (a *Adapter) replace(replies []models.Reply) {
	next := make([]models.Reply, 0, len(replies))
	ids := make(map[string]struct{}, len(replies))
	for _, r := range replies {
		if _, ok := ids[r.ID]; ok {
			continue
		}
		ids[r.ID] = struct{}{}
		next = append(next, r)
	}
	models.SortReplies(next)

	if sameIDs(a.view, next) {
		return
	}
	a.view = next
	a.ids = ids
	a.publish()
}

func sameIDs(a, b []models.Reply) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID {
			return false
		}
	}
	return true
}

func (a *Adapter) publish() {
	view := append([]models.Reply(nil), a.view...)
	a.mu.Lock()
	a.snapshot = view
	a.mu.Unlock()
	if a.onChange != nil {
		a.onChange(append([]models.Reply(nil), view...))
	}
}

func (a *Adapter) setState(s State) {
	a.mu.Lock()
	if a.state == s || a.state == StateClosed {
		a.mu.Unlock()
		return
	}
	a.state = s
	a.mu.Unlock()
	a.logger.Debug().Str("state", s.String()).Msg("Delivery state changed")
	if a.onState != nil {
		a.onState(s)
	}
}

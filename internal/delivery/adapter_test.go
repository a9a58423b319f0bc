package delivery

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"feedbackhub/internal/apperr"
	"feedbackhub/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func reply(id string, sec int) models.Reply {
	return models.Reply{
		ID:          id,
		ThreadID:    "t1",
		Body:        "body " + id,
		AuthorRole:  models.RoleExternalSender,
		AuthorLabel: "a@b.com",
		CreatedAt:   base.Add(time.Duration(sec) * time.Second),
	}
}

type fakeStream struct {
	ch     chan StreamEvent
	closed chan struct{}
	once   sync.Once
}

func newFakeStream() *fakeStream {
	return &fakeStream{ch: make(chan StreamEvent, 16), closed: make(chan struct{})}
}

func (s *fakeStream) Events() <-chan StreamEvent { return s.ch }

func (s *fakeStream) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func (s *fakeStream) send(ev StreamEvent) { s.ch <- ev }

func (s *fakeStream) drop() { close(s.ch) }

func (s *fakeStream) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

type fakeSource struct {
	mu           sync.Mutex
	replies      []models.Reply
	push         bool
	listErr      error
	subscribeErr error
	streams      []*fakeStream
	lists        int
	seq          int
}

func (f *fakeSource) ListReplies(_ context.Context, _ string) ([]models.Reply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := append([]models.Reply(nil), f.replies...)
	models.SortReplies(out)
	return out, nil
}

func (f *fakeSource) AppendReply(_ context.Context, threadID, body, sender string) (models.Reply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	r := models.Reply{
		ID:          fmt.Sprintf("sent-%02d", f.seq),
		ThreadID:    threadID,
		Body:        body,
		AuthorRole:  models.RoleExternalSender,
		AuthorLabel: sender,
		CreatedAt:   base.Add(time.Hour + time.Duration(f.seq)*time.Second),
	}
	f.replies = append(f.replies, r)
	return r, nil
}

func (f *fakeSource) Subscribe(_ context.Context, _ string) (Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr != nil {
		return nil, f.subscribeErr
	}
	st := newFakeStream()
	f.streams = append(f.streams, st)
	return st, nil
}

func (f *fakeSource) SupportsPush() bool { return f.push }

func (f *fakeSource) add(r models.Reply) {
	f.mu.Lock()
	f.replies = append(f.replies, r)
	f.mu.Unlock()
}

func (f *fakeSource) setListErr(err error) {
	f.mu.Lock()
	f.listErr = err
	f.mu.Unlock()
}

func (f *fakeSource) subscriptions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.streams)
}

func (f *fakeSource) stream(i int) *fakeStream {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streams[i]
}

func (f *fakeSource) listCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lists
}

func ids(replies []models.Reply) []string {
	out := make([]string, len(replies))
	for i, r := range replies {
		out[i] = r.ID
	}
	return out
}

func openPushActive(t *testing.T, src *fakeSource, opts ...Option) (*Adapter, *fakeStream) {
	t.Helper()
	a := Open(context.Background(), src, "t1", opts...)
	t.Cleanup(a.Close)

	require.Eventually(t, func() bool { return src.subscriptions() == 1 }, time.Second, 5*time.Millisecond)
	st := src.stream(0)
	st.send(StreamEvent{Kind: StreamConnected})
	require.Eventually(t, func() bool { return a.State() == StatePushActive }, time.Second, 5*time.Millisecond)
	return a, st
}

func TestAdapter_PushMergesByID(t *testing.T) {
	src := &fakeSource{push: true, replies: []models.Reply{reply("r1", 1), reply("r2", 2)}}
	a, st := openPushActive(t, src)

	st.send(StreamEvent{Kind: StreamReply, Reply: reply("r2", 2)})
	st.send(StreamEvent{Kind: StreamReply, Reply: reply("r3", 3)})
	st.send(StreamEvent{Kind: StreamReply, Reply: reply("r3", 3)})
	// delivered late but older than the tail
	st.send(StreamEvent{Kind: StreamReply, Reply: reply("r0", 0)})

	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"r0", "r1", "r2", "r3"}, ids(a.Snapshot()))
	}, time.Second, 5*time.Millisecond)
}

func TestAdapter_LocalEchoIsIdempotent(t *testing.T) {
	src := &fakeSource{push: true}
	a, st := openPushActive(t, src)

	sent, err := a.Send(context.Background(), "hello", "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, []string{sent.ID}, ids(a.Snapshot()))

	st.send(StreamEvent{Kind: StreamReply, Reply: sent})
	marker := sent
	marker.ID = "zz-marker"
	marker.CreatedAt = sent.CreatedAt.Add(time.Second)
	st.send(StreamEvent{Kind: StreamReply, Reply: marker})

	require.Eventually(t, func() bool { return len(a.Snapshot()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{sent.ID, "zz-marker"}, ids(a.Snapshot()))
}

func TestAdapter_CatchUpOnConnect(t *testing.T) {
	src := &fakeSource{push: true, replies: []models.Reply{reply("r1", 1)}}
	a := Open(context.Background(), src, "t1")
	t.Cleanup(a.Close)

	require.Eventually(t, func() bool { return src.subscriptions() == 1 }, time.Second, 5*time.Millisecond)
	// committed after the initial fetch, before the channel confirmed
	src.add(reply("r2", 2))
	src.stream(0).send(StreamEvent{Kind: StreamConnected})

	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"r1", "r2"}, ids(a.Snapshot()))
	}, time.Second, 5*time.Millisecond)
}

func TestAdapter_DowngradesToPollingOnDrop(t *testing.T) {
	interval := 20 * time.Millisecond
	src := &fakeSource{push: true, replies: []models.Reply{reply("r1", 1)}}
	a, st := openPushActive(t, src, WithPollInterval(interval))

	src.add(reply("r2", 2))
	st.drop()

	require.Eventually(t, func() bool { return a.State() == StatePollActive }, time.Second, 5*time.Millisecond)
	// the immediate poll after the drop picks up r2
	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"r1", "r2"}, ids(a.Snapshot()))
	}, 2*interval+100*time.Millisecond, 5*time.Millisecond)

	src.add(reply("r3", 3))
	assert.Eventually(t, func() bool { return len(a.Snapshot()) == 3 }, time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, src.subscriptions(), "push is never retried after a drop")
	assert.True(t, st.isClosed())
}

func TestAdapter_StreamErrorDowngrades(t *testing.T) {
	src := &fakeSource{push: true}
	a, st := openPushActive(t, src, WithPollInterval(20*time.Millisecond))

	st.send(StreamEvent{Kind: StreamError, Err: apperr.New(apperr.KindTransientIO, "reset")})

	require.Eventually(t, func() bool { return a.State() == StatePollActive }, time.Second, 5*time.Millisecond)
	assert.True(t, st.isClosed())
}

func TestAdapter_PollsWithoutPushSupport(t *testing.T) {
	src := &fakeSource{push: false, replies: []models.Reply{reply("r1", 1)}}
	a := Open(context.Background(), src, "t1", WithPollInterval(20*time.Millisecond))
	t.Cleanup(a.Close)

	require.Eventually(t, func() bool { return a.State() == StatePollActive }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"r1"}, ids(a.Snapshot()))

	src.add(reply("r2", 2))
	assert.Eventually(t, func() bool { return len(a.Snapshot()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, src.subscriptions())
}

func TestAdapter_SubscribeFailureFallsBack(t *testing.T) {
	src := &fakeSource{push: true, subscribeErr: apperr.New(apperr.KindTransientIO, "refused")}
	a := Open(context.Background(), src, "t1", WithPollInterval(time.Hour))
	t.Cleanup(a.Close)

	require.Eventually(t, func() bool { return a.State() == StatePollActive }, time.Second, 5*time.Millisecond)
	// initial fetch plus the immediate poll
	assert.Eventually(t, func() bool { return src.listCalls() == 2 }, time.Second, 5*time.Millisecond)
}

func TestAdapter_TransientPollErrorsKeepPolling(t *testing.T) {
	src := &fakeSource{listErr: apperr.New(apperr.KindTransientIO, "timeout")}
	a := Open(context.Background(), src, "t1", WithPollInterval(10*time.Millisecond))
	t.Cleanup(a.Close)

	require.Eventually(t, func() bool { return src.listCalls() >= 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, StatePollActive, a.State())

	src.add(reply("r1", 1))
	src.setListErr(nil)
	assert.Eventually(t, func() bool { return len(a.Snapshot()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestAdapter_TerminalErrorCloses(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind apperr.Kind
	}{
		{name: "unauthorized", err: apperr.New(apperr.KindUnauthorized, "Unauthorized"), kind: apperr.KindUnauthorized},
		{name: "not found", err: apperr.New(apperr.KindNotFound, "thread not found"), kind: apperr.KindNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &fakeSource{push: true, listErr: tt.err}
			a := Open(context.Background(), src, "t1")

			select {
			case <-a.Done():
			case <-time.After(time.Second):
				t.Fatal("adapter did not close")
			}
			assert.Equal(t, StateClosed, a.State())
			assert.Equal(t, tt.kind, apperr.KindOf(a.Err()))
			assert.Equal(t, 0, src.subscriptions())
			a.Close()
		})
	}
}

func TestAdapter_CloseIsSynchronous(t *testing.T) {
	t.Run("polling", func(t *testing.T) {
		src := &fakeSource{}
		a := Open(context.Background(), src, "t1", WithPollInterval(5*time.Millisecond))
		require.Eventually(t, func() bool { return src.listCalls() >= 2 }, time.Second, time.Millisecond)

		a.Close()
		assert.Equal(t, StateClosed, a.State())

		calls := src.listCalls()
		time.Sleep(30 * time.Millisecond)
		assert.Equal(t, calls, src.listCalls(), "no poll after close")

		a.Close()
	})

	t.Run("pushing", func(t *testing.T) {
		src := &fakeSource{push: true}
		a, st := openPushActive(t, src)

		a.Close()
		assert.True(t, st.isClosed())
		assert.Equal(t, StateClosed, a.State())
	})
}

func TestAdapter_SendAfterCloseLeavesViewAlone(t *testing.T) {
	src := &fakeSource{}
	a := Open(context.Background(), src, "t1", WithPollInterval(time.Hour))
	require.Eventually(t, func() bool { return a.State() == StatePollActive }, time.Second, time.Millisecond)
	a.Close()

	_, err := a.Send(context.Background(), "late", "a@b.com")
	require.NoError(t, err)
	assert.Empty(t, a.Snapshot())
}

func TestAdapter_OnChangeGetsCopies(t *testing.T) {
	var (
		mu    sync.Mutex
		views [][]models.Reply
	)
	src := &fakeSource{push: true, replies: []models.Reply{reply("r1", 1)}}
	a, st := openPushActive(t, src, WithOnChange(func(v []models.Reply) {
		mu.Lock()
		views = append(views, v)
		mu.Unlock()
		v[0].Body = "mutated"
	}))

	st.send(StreamEvent{Kind: StreamReply, Reply: reply("r2", 2)})
	require.Eventually(t, func() bool { return len(a.Snapshot()) == 2 }, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, views)
	assert.Len(t, views[len(views)-1], 2)
	assert.Equal(t, "body r1", a.Snapshot()[0].Body)
}

func TestAdapter_StateTransitions(t *testing.T) {
	var (
		mu     sync.Mutex
		states []State
	)
	src := &fakeSource{push: true}
	a, st := openPushActive(t, src, WithPollInterval(time.Hour), WithOnState(func(s State) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	}))
	st.drop()
	require.Eventually(t, func() bool { return a.State() == StatePollActive }, time.Second, 5*time.Millisecond)
	a.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []State{StateFetching, StatePushAttempting, StatePushActive, StatePollActive, StateClosed}, states)
}

func TestState_String(t *testing.T) {
	tests := map[State]string{
		StateInitial:        "initial",
		StateFetching:       "fetching",
		StatePushAttempting: "push-attempting",
		StatePushActive:     "push-active",
		StatePollActive:     "poll-active",
		StateClosed:         "closed",
		State(99):           "unknown",
	}
	for s, want := range tests {
		assert.Equal(t, want, s.String())
	}
}

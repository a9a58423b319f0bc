package widget

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"feedbackhub/internal/apperr"
	"feedbackhub/internal/delivery"
	"feedbackhub/internal/models"
	"feedbackhub/internal/server/servertest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(t *testing.T, opts ...Option) (*Session, *servertest.Harness) {
	t.Helper()
	h := servertest.New(t)
	backend := delivery.NewWidgetSource(h.URL, servertest.APIKey)
	opts = append([]Option{WithDeliveryOptions(delivery.WithPollInterval(50 * time.Millisecond))}, opts...)
	s, err := NewSession(servertest.APIKey, backend, opts...)
	require.NoError(t, err)
	t.Cleanup(s.Dispose)
	return s, h
}

func TestNewSession_RequiresKeyAndBackend(t *testing.T) {
	_, err := NewSession("", delivery.NewWidgetSource("http://localhost", "k"))
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))

	_, err = NewSession("k", nil)
	assert.Error(t, err)
}

func TestSession_SubmitFlow(t *testing.T) {
	env := Environment{URL: "https://acme.test/pricing", UserAgent: "Mozilla/5.0", Screen: "1920x1080", Viewport: "1280x720", Locale: "en-US"}
	s, h := newTestSession(t, WithEnvironment(func() Environment { return env }))
	ctx := context.Background()

	assert.Equal(t, ViewClosed, s.View())
	require.NoError(t, s.Open())
	assert.Equal(t, ViewNewSubmission, s.View())

	s.Console().Record("error", "TypeError: x is undefined")
	id, err := s.Submit(ctx, "  Checkout does nothing  ", "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, ViewSubmissionSuccess, s.View())
	assert.Equal(t, id, s.SubmittedThread())

	thread, err := h.Service.GetThread(ctx, h.Operator, id)
	require.NoError(t, err)
	assert.Equal(t, "Checkout does nothing", thread.Body)
	assert.Equal(t, "a@b.com", thread.SenderIdentity)
	assert.Equal(t, env.URL, thread.Metadata.URL)
	assert.Equal(t, env.Locale, thread.Metadata.Locale)
	require.Len(t, thread.Metadata.ConsoleLogs, 1)
	assert.Equal(t, "TypeError: x is undefined", thread.Metadata.ConsoleLogs[0].Message)

	identity, err := s.Identity()
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", identity)

	require.NoError(t, s.Back(ctx))
	assert.Equal(t, ViewNewSubmission, s.View())
}

func TestSession_SubmitValidation(t *testing.T) {
	s, _ := newTestSession(t)
	require.NoError(t, s.Open())

	tests := []struct {
		name   string
		body   string
		sender string
		field  string
	}{
		{name: "empty body", body: "   ", sender: "a@b.com", field: "body"},
		{name: "malformed email", body: "hi", sender: "a@", field: "sender_identity"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Submit(context.Background(), tt.body, tt.sender)
			require.Error(t, err)
			e, ok := apperr.As(err)
			require.True(t, ok)
			assert.Equal(t, apperr.KindValidation, e.Kind())
			assert.Equal(t, tt.field, e.Field())
			assert.Equal(t, ViewNewSubmission, s.View())
		})
	}
}

func TestSession_ThreadDetailAndReply(t *testing.T) {
	s, h := newTestSession(t)
	ctx := context.Background()
	h.AddThread("t1", servertest.Acme)

	require.NoError(t, s.Open())
	require.NoError(t, s.SelectTab(ctx, TabThreads))
	assert.Equal(t, ViewThreadList, s.View())
	require.Len(t, s.Threads(), 1)

	require.NoError(t, s.SelectThread("t1"))
	assert.Equal(t, ViewThreadDetail, s.View())
	assert.Equal(t, "t1", s.SelectedThread())
	require.NotNil(t, s.Adapter())

	_, err := s.Reply(ctx, "Any update?")
	assert.ErrorIs(t, err, ErrIdentityRequired)

	require.Error(t, s.SetIdentity("nope"))
	require.NoError(t, s.SetIdentity("a@b.com"))

	sent, err := s.Reply(ctx, "Any update?")
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", sent.AuthorLabel)

	op, err := h.Service.AppendReply(ctx, h.Operator, "t1", "Looking now", models.RoleOperator, models.OperatorLabel)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		got := s.Replies()
		return len(got) == 2 && got[0].ID == sent.ID && got[1].ID == op.ID
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSession_TeardownOnLeavingDetail(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		leave func(*Session) error
		view  View
	}{
		{name: "back", leave: func(s *Session) error { return s.Back(ctx) }, view: ViewThreadList},
		{name: "close", leave: func(s *Session) error { s.Close(); return nil }, view: ViewClosed},
		{name: "switch tab", leave: func(s *Session) error { return s.SelectTab(ctx, TabNew) }, view: ViewNewSubmission},
		{name: "dispose", leave: func(s *Session) error { s.Dispose(); return nil }, view: ViewClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, h := newTestSession(t)
			h.AddThread("t1", servertest.Acme)

			require.NoError(t, s.Open())
			require.NoError(t, s.SelectTab(ctx, TabThreads))
			require.NoError(t, s.SelectThread("t1"))
			a := s.Adapter()
			require.Eventually(t, func() bool { return a.State() == delivery.StatePushActive }, 2*time.Second, 10*time.Millisecond)

			require.NoError(t, tt.leave(s))

			assert.Equal(t, tt.view, s.View())
			assert.Nil(t, s.Adapter())
			assert.Equal(t, delivery.StateClosed, a.State())
			assert.Eventually(t, func() bool { return h.Hub.Size("t1") == 0 }, time.Second, 10*time.Millisecond)
		})
	}
}

// countingBackend records how many adapters are subscribed at once
type countingBackend struct {
	mu      sync.Mutex
	open    int
	maxOpen int
}

type countingStream struct {
	b      *countingBackend
	ch     chan delivery.StreamEvent
	closed sync.Once
}

func (st *countingStream) Events() <-chan delivery.StreamEvent { return st.ch }

func (st *countingStream) Close() error {
	st.closed.Do(func() {
		st.b.mu.Lock()
		st.b.open--
		st.b.mu.Unlock()
	})
	return nil
}

func (b *countingBackend) ListReplies(context.Context, string) ([]models.Reply, error) {
	return nil, nil
}

func (b *countingBackend) AppendReply(context.Context, string, string, string) (models.Reply, error) {
	return models.Reply{}, errors.New("not used")
}

func (b *countingBackend) Subscribe(context.Context, string) (delivery.Stream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.open++
	if b.open > b.maxOpen {
		b.maxOpen = b.open
	}
	ch := make(chan delivery.StreamEvent, 1)
	ch <- delivery.StreamEvent{Kind: delivery.StreamConnected}
	return &countingStream{b: b, ch: ch}, nil
}

func (b *countingBackend) SupportsPush() bool { return true }

func (b *countingBackend) SubmitThread(context.Context, models.SubmitThreadRequest) (string, error) {
	return "t-new", nil
}

func (b *countingBackend) ListThreads(context.Context) ([]models.Thread, error) {
	return []models.Thread{{ID: "t1"}, {ID: "t2"}}, nil
}

func (b *countingBackend) counts() (int, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open, b.maxOpen
}

func TestSession_AtMostOneAdapter(t *testing.T) {
	ctx := context.Background()
	b := &countingBackend{}
	s, err := NewSession("k", b)
	require.NoError(t, err)
	defer s.Dispose()

	require.NoError(t, s.Open())
	for i := 0; i < 5; i++ {
		require.NoError(t, s.SelectTab(ctx, TabThreads))
		require.NoError(t, s.SelectThread("t1"))
		a := s.Adapter()
		require.Eventually(t, func() bool { return a.State() == delivery.StatePushActive }, time.Second, 5*time.Millisecond)
		require.NoError(t, s.Back(ctx))
		require.NoError(t, s.SelectThread("t2"))
		require.Eventually(t, func() bool { open, _ := b.counts(); return open == 1 }, time.Second, 5*time.Millisecond)
	}
	s.Close()

	open, maxOpen := b.counts()
	assert.Equal(t, 0, open)
	assert.Equal(t, 1, maxOpen)
}

func TestSession_WrongViewAndDisposed(t *testing.T) {
	ctx := context.Background()
	s, err := NewSession("k", &countingBackend{})
	require.NoError(t, err)

	assert.ErrorIs(t, s.SelectThread("t1"), ErrWrongView)
	_, err = s.Submit(ctx, "hi", "")
	assert.ErrorIs(t, err, ErrWrongView)

	require.NoError(t, s.Open())
	assert.ErrorIs(t, s.SelectThread("t1"), ErrWrongView)
	assert.ErrorIs(t, s.Back(ctx), ErrWrongView)
	_, err = s.Reply(ctx, "hi")
	assert.ErrorIs(t, err, ErrWrongView)

	s.Dispose()
	s.Dispose()
	assert.ErrorIs(t, s.Open(), ErrDisposed)
	assert.ErrorIs(t, s.SelectTab(ctx, TabThreads), ErrDisposed)
}

func TestSession_SubmitUsesRememberedIdentity(t *testing.T) {
	store := NewMemoryIdentityStore()
	require.NoError(t, store.Set("k", "known@b.com"))

	var got models.SubmitThreadRequest
	b := &recordingBackend{countingBackend: &countingBackend{}, submitted: &got}
	s, err := NewSession("k", b, WithIdentityStore(store))
	require.NoError(t, err)
	defer s.Dispose()

	require.NoError(t, s.Open())
	_, err = s.Submit(context.Background(), "hello", "")
	require.NoError(t, err)
	assert.Equal(t, "known@b.com", got.SenderIdentity)
}

type recordingBackend struct {
	*countingBackend
	submitted *models.SubmitThreadRequest
}

func (b *recordingBackend) SubmitThread(_ context.Context, req models.SubmitThreadRequest) (string, error) {
	*b.submitted = req
	return "t-new", nil
}

// blockingBackend holds ListThreads until released or cancelled
type blockingBackend struct {
	*countingBackend
	started chan struct{}
	release chan struct{}
}

func newBlockingBackend() *blockingBackend {
	return &blockingBackend{
		countingBackend: &countingBackend{},
		started:         make(chan struct{}, 1),
		release:         make(chan struct{}),
	}
}

func (b *blockingBackend) ListThreads(ctx context.Context) ([]models.Thread, error) {
	b.started <- struct{}{}
	select {
	case <-b.release:
		return b.countingBackend.ListThreads(ctx)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestSession_ListLoadDoesNotBlockClose(t *testing.T) {
	b := newBlockingBackend()
	s, err := NewSession("k", b)
	require.NoError(t, err)
	defer s.Dispose()
	require.NoError(t, s.Open())

	errc := make(chan error, 1)
	go func() { errc <- s.SelectTab(context.Background(), TabThreads) }()
	<-b.started

	assert.Equal(t, ViewThreadList, s.View())
	s.Close()
	assert.Equal(t, ViewClosed, s.View())

	close(b.release)
	require.NoError(t, <-errc)
	assert.Empty(t, s.Threads(), "late list must not land in a closed widget")
	assert.Equal(t, ViewClosed, s.View())
}

func TestSession_DisposeAbortsListLoad(t *testing.T) {
	b := newBlockingBackend()
	s, err := NewSession("k", b)
	require.NoError(t, err)
	require.NoError(t, s.Open())

	errc := make(chan error, 1)
	go func() { errc <- s.SelectTab(context.Background(), TabThreads) }()
	<-b.started

	s.Dispose()
	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrDisposed)
	case <-time.After(2 * time.Second):
		t.Fatal("list load not aborted by Dispose")
	}
	assert.Empty(t, s.Threads())
}

// Package widget models the embedded feedback widget: its views, the visitor's
// remembered identity and the thread it is currently following.
package widget

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"feedbackhub/internal/apperr"
	"feedbackhub/internal/delivery"
	"feedbackhub/internal/models"
	"feedbackhub/internal/validation"

	"github.com/rs/zerolog"
)

// View is what the widget currently shows
type View string

const (
	ViewClosed            View = "closed"
	ViewNewSubmission     View = "view:new-submission"
	ViewThreadList        View = "view:thread-list"
	ViewThreadDetail      View = "view:thread-detail"
	ViewSubmissionSuccess View = "view:submission-success"
)

// Tab is one of the widget's top-level tabs
type Tab int

const (
	TabNew Tab = iota
	TabThreads
)

var (
	// ErrDisposed is returned by every method after Dispose
	ErrDisposed = errors.New("widget: session disposed")
	// ErrWrongView is returned when an action is not available in the current view
	ErrWrongView = errors.New("widget: action not available in this view")
)

// Backend is the widget API as seen by one embedding site
type Backend interface {
	delivery.Source
	SubmitThread(ctx context.Context, req models.SubmitThreadRequest) (string, error)
	ListThreads(ctx context.Context) ([]models.Thread, error)
}

// Session is one widget instance. It owns at most one delivery adapter, open
// only while a thread is shown.
type Session struct {
	mu sync.Mutex

	apiKey      string
	backend     Backend
	identities  IdentityStore
	console     *ConsoleBuffer
	environment func() Environment
	adapterOpts []delivery.Option
	logger      zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	view      View
	threads   []models.Thread
	threadID  string
	adapter   *delivery.Adapter
	submitted string
	listSeq   int
	disposed  bool
}

// NewSession creates a closed widget for the site identified by apiKey
func NewSession(apiKey string, backend Backend, opts ...Option) (*Session, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, apperr.New(apperr.KindUnauthorized, "API key is required")
	}
	if backend == nil {
		return nil, errors.New("widget backend is required")
	}

	s := &Session{
		apiKey:      apiKey,
		backend:     backend,
		identities:  NewMemoryIdentityStore(),
		console:     NewConsoleBuffer(models.MaxConsoleEntries),
		environment: func() Environment { return Environment{} },
		logger:      zerolog.Nop(),
		view:        ViewClosed,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With().Str("module", "widget").Logger()
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s, nil
}

// View returns the current view
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

// Console returns the buffer that feeds submissions
func (s *Session) Console() *ConsoleBuffer { return s.console }

// Threads returns the last loaded thread list
func (s *Session) Threads() []models.Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Thread(nil), s.threads...)
}

// SelectedThread returns the thread shown in the detail view, if any
func (s *Session) SelectedThread() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.threadID
}

// SubmittedThread returns the id of the last thread submitted
func (s *Session) SubmittedThread() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submitted
}

// Adapter returns the open delivery adapter, nil outside the detail view
func (s *Session) Adapter() *delivery.Adapter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.adapter
}

// Replies returns the conversation of the shown thread
func (s *Session) Replies() []models.Reply {
	s.mu.Lock()
	a := s.adapter
	s.mu.Unlock()
	if a == nil {
		return nil
	}
	return a.Snapshot()
}

// Identity returns the remembered visitor email for this site
func (s *Session) Identity() (string, error) {
	return s.identities.Get(s.apiKey)
}

// SetIdentity validates and remembers the visitor email
func (s *Session) SetIdentity(email string) error {
	email = strings.TrimSpace(email)
	if err := validation.Get().Email("sender_identity", email); err != nil {
		return err
	}
	return s.identities.Set(s.apiKey, email)
}

// Open shows the widget on the new-submission tab
func (s *Session) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return ErrDisposed
	}
	if s.view == ViewClosed {
		s.view = ViewNewSubmission
	}
	return nil
}

// Close hides the widget and releases any open thread
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeAdapterLocked()
	s.view = ViewClosed
}

// SelectTab switches tabs. The threads tab reloads the thread list.
func (s *Session) SelectTab(ctx context.Context, tab Tab) error {
	if tab != TabNew && tab != TabThreads {
		return fmt.Errorf("unknown tab %d", tab)
	}

	s.mu.Lock()
	if err := s.checkOpenLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.closeAdapterLocked()
	if tab == TabNew {
		s.view = ViewNewSubmission
		s.mu.Unlock()
		return nil
	}
	seq := s.showListLocked()
	s.mu.Unlock()

	return s.loadThreads(ctx, seq)
}

// SelectThread shows a thread from the list and starts following it
func (s *Session) SelectThread(threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpenLocked(); err != nil {
		return err
	}
	if s.view != ViewThreadList {
		return ErrWrongView
	}

	s.closeAdapterLocked()
	s.threadID = threadID
	s.adapter = delivery.Open(s.ctx, s.backend, threadID, s.adapterOpts...)
	s.view = ViewThreadDetail
	return nil
}

// Back leaves the detail view for the list, or the success view for a new
// submission
func (s *Session) Back(ctx context.Context) error {
	s.mu.Lock()
	if err := s.checkOpenLocked(); err != nil {
		s.mu.Unlock()
		return err
	}

	switch s.view {
	case ViewThreadDetail:
		s.closeAdapterLocked()
		seq := s.showListLocked()
		s.mu.Unlock()
		return s.loadThreads(ctx, seq)
	case ViewSubmissionSuccess:
		s.view = ViewNewSubmission
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()
	return ErrWrongView
}

// Submit sends new feedback with a snapshot of the page environment and
// console. A given sender email is remembered for later replies.
func (s *Session) Submit(ctx context.Context, body, sender string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpenLocked(); err != nil {
		return "", err
	}
	if s.view != ViewNewSubmission {
		return "", ErrWrongView
	}

	body = strings.TrimSpace(body)
	if body == "" {
		return "", apperr.Validation("body", "Please enter your feedback")
	}
	sender = strings.TrimSpace(sender)
	if sender != "" {
		if err := validation.Get().Email("sender_identity", sender); err != nil {
			return "", err
		}
		if err := s.identities.Set(s.apiKey, sender); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to remember sender identity")
		}
	} else if remembered, err := s.identities.Get(s.apiKey); err == nil {
		sender = remembered
	}

	req := models.SubmitThreadRequest{
		Body:           body,
		SenderIdentity: sender,
		Metadata:       s.environment().Metadata(s.console.Snapshot()),
	}
	id, err := s.backend.SubmitThread(ctx, req)
	if err != nil {
		return "", err
	}

	s.submitted = id
	s.view = ViewSubmissionSuccess
	s.logger.Debug().Str("thread_id", id).Msg("Feedback submitted")
	return id, nil
}

// Reply posts to the shown thread as the remembered visitor. It returns
// ErrIdentityRequired until an email has been given.
func (s *Session) Reply(ctx context.Context, body string) (models.Reply, error) {
	s.mu.Lock()
	if err := s.checkOpenLocked(); err != nil {
		s.mu.Unlock()
		return models.Reply{}, err
	}
	a := s.adapter
	s.mu.Unlock()
	if a == nil {
		return models.Reply{}, ErrWrongView
	}

	if strings.TrimSpace(body) == "" {
		return models.Reply{}, apperr.Validation("body", "Reply cannot be empty")
	}
	identity, err := s.identities.Get(s.apiKey)
	if err != nil {
		return models.Reply{}, err
	}
	if identity == "" {
		return models.Reply{}, ErrIdentityRequired
	}
	return a.Send(ctx, body, identity)
}

// Dispose tears the session down for good
func (s *Session) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return
	}
	s.closeAdapterLocked()
	s.cancel()
	s.view = ViewClosed
	s.disposed = true
}

func (s *Session) checkOpenLocked() error {
	if s.disposed {
		return ErrDisposed
	}
	if s.view == ViewClosed {
		return ErrWrongView
	}
	return nil
}

func (s *Session) closeAdapterLocked() {
	if s.adapter != nil {
		s.adapter.Close()
		s.adapter = nil
	}
	s.threadID = ""
}

func (s *Session) showListLocked() int {
	s.view = ViewThreadList
	s.listSeq++
	return s.listSeq
}

// loadThreads fetches the thread list without holding the lock. Dispose
// aborts the request, and a result is dropped once the list it was loaded
// for has been left or reloaded.
func (s *Session) loadThreads(ctx context.Context, seq int) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	threads, err := s.backend.ListThreads(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return ErrDisposed
	}
	if s.view != ViewThreadList || s.listSeq != seq {
		return nil
	}
	if err != nil {
		return err
	}
	s.threads = threads
	return nil
}

// Package conversation is the durable, authorized reply log behind every
// feedback thread. Both the widget (API key) and the dashboard (operator
// session) go through the same ownership check before reading or writing.
package conversation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"feedbackhub/internal/apperr"
	"feedbackhub/internal/database"
	"feedbackhub/internal/email"
	"feedbackhub/internal/models"
	"feedbackhub/internal/realtime"
	"feedbackhub/internal/validation"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/text/unicode/norm"
)

// ThreadRepository persists threads
type ThreadRepository interface {
	InsertThread(ctx context.Context, thread models.Thread) error
	GetOwnership(ctx context.Context, threadID string) (database.ThreadOwnership, error)
	GetThread(ctx context.Context, threadID string) (models.Thread, error)
	ListByProject(ctx context.Context, projectID string) ([]models.Thread, error)
	ListByOwner(ctx context.Context, ownerID string) ([]models.Thread, error)
	UpdateStatus(ctx context.Context, threadID, status string) error
}

// ReplyRepository is the append-only reply log
type ReplyRepository interface {
	InsertReply(ctx context.Context, reply models.Reply) error
	ListReplies(ctx context.Context, threadID string) ([]models.Reply, error)
}

// ProjectLookup loads project records
type ProjectLookup interface {
	GetByID(ctx context.Context, projectID string) (models.Project, error)
}

// Notifier sends operator notifications
type Notifier interface {
	SendReplyNotification(ctx context.Context, n email.ReplyNotification) error
}

// Service implements the conversation operations
type Service struct {
	threads  ThreadRepository
	replies  ReplyRepository
	projects ProjectLookup

	publisher     realtime.Publisher
	notifier      Notifier
	onDelivery    func(email.ReplyNotification, error)
	notifyTimeout time.Duration
	dashboardURL  string
	logger        zerolog.Logger

	now       func() time.Time
	clockMu   sync.Mutex
	lastStamp time.Time

	pending sync.WaitGroup
}

// NewService creates the conversation service
func NewService(threads ThreadRepository, replies ReplyRepository, projects ProjectLookup, opts ...Option) (*Service, error) {
	if threads == nil || replies == nil || projects == nil {
		return nil, fmt.Errorf("thread, reply and project stores are required for conversation service")
	}
	s := &Service{
		threads:       threads,
		replies:       replies,
		projects:      projects,
		notifyTimeout: 15 * time.Second,
		logger:        zerolog.Nop(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// AppendReply durably appends a reply to a thread the caller owns. The row is
// committed before AppendReply returns.
func (s *Service) AppendReply(ctx context.Context, caller Caller, threadID, body, role, label string) (models.Reply, error) {
	own, err := s.authorizeThread(ctx, caller, threadID)
	if err != nil {
		return models.Reply{}, err
	}

	body = normalize(body)
	if body == "" {
		return models.Reply{}, apperr.Validation("body", "Reply cannot be empty")
	}

	label = strings.TrimSpace(label)
	switch role {
	case models.RoleOperator:
		if !caller.IsOperator() {
			return models.Reply{}, apperr.ErrUnauthorized
		}
		if label == "" {
			label = models.OperatorLabel
		}
	case models.RoleExternalSender:
		if err := validation.Get().Email("sender_identity", label); err != nil {
			return models.Reply{}, err
		}
	default:
		return models.Reply{}, apperr.Validation("author_role", "Unknown author role")
	}

	id, err := uuid.NewV7()
	if err != nil {
		return models.Reply{}, apperr.Wrap(apperr.KindTransientIO, err, "failed to generate reply id")
	}

	reply := models.Reply{
		ID:          id.String(),
		ThreadID:    own.ThreadID,
		Body:        body,
		AuthorRole:  role,
		AuthorLabel: label,
		CreatedAt:   s.stamp(),
	}
	if err := s.replies.InsertReply(ctx, reply); err != nil {
		return models.Reply{}, err
	}

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, reply); err != nil {
			// Committed already; viewers recover through their next poll.
			s.logger.Warn().Err(err).Str("thread_id", reply.ThreadID).Str("reply_id", reply.ID).Msg("Failed to publish reply")
		}
	}

	if role == models.RoleExternalSender && s.notifier != nil {
		s.notifyAsync(own, reply)
	}

	return reply, nil
}

// ListReplies returns every reply of a thread the caller owns, in conversation order
func (s *Service) ListReplies(ctx context.Context, caller Caller, threadID string) ([]models.Reply, error) {
	if _, err := s.authorizeThread(ctx, caller, threadID); err != nil {
		return nil, err
	}
	return s.replies.ListReplies(ctx, threadID)
}

// Authorize checks that the caller may read and write the thread
func (s *Service) Authorize(ctx context.Context, caller Caller, threadID string) error {
	_, err := s.authorizeThread(ctx, caller, threadID)
	return err
}

// SubmitThread creates a new open thread for the caller's project
func (s *Service) SubmitThread(ctx context.Context, caller Caller, body, sender string, metadata models.ThreadMetadata) (models.Thread, error) {
	project, ok := caller.Project()
	if !ok || !caller.valid() {
		return models.Thread{}, apperr.ErrUnauthorized
	}
	if !project.SubscriptionActive {
		return models.Thread{}, apperr.New(apperr.KindUnauthorized, "project subscription is not active")
	}

	body = normalize(body)
	if body == "" {
		return models.Thread{}, apperr.Validation("body", "Feedback cannot be empty")
	}
	sender = strings.TrimSpace(sender)
	if strings.Contains(sender, "@") {
		if err := validation.Get().Email("sender_identity", sender); err != nil {
			return models.Thread{}, err
		}
	}
	if n := len(metadata.ConsoleLogs); n > models.MaxConsoleEntries {
		metadata.ConsoleLogs = metadata.ConsoleLogs[n-models.MaxConsoleEntries:]
	}

	id, err := uuid.NewV7()
	if err != nil {
		return models.Thread{}, apperr.Wrap(apperr.KindTransientIO, err, "failed to generate thread id")
	}

	thread := models.Thread{
		ID:             id.String(),
		ProjectID:      project.ID,
		Body:           body,
		SenderIdentity: sender,
		Status:         models.StatusOpen,
		Metadata:       metadata,
		CreatedAt:      s.stamp(),
	}
	if err := s.threads.InsertThread(ctx, thread); err != nil {
		return models.Thread{}, err
	}

	s.logger.Info().Str("thread_id", thread.ID).Str("project_id", project.ID).Msg("Thread submitted")
	return thread, nil
}

// ListThreads returns the caller's threads, newest first
func (s *Service) ListThreads(ctx context.Context, caller Caller) ([]models.Thread, error) {
	if !caller.valid() {
		return nil, apperr.ErrUnauthorized
	}
	if caller.IsOperator() {
		return s.threads.ListByOwner(ctx, caller.OperatorID())
	}
	project, _ := caller.Project()
	if !project.SubscriptionActive {
		return nil, apperr.New(apperr.KindUnauthorized, "project subscription is not active")
	}
	return s.threads.ListByProject(ctx, project.ID)
}

// GetThread loads one thread the caller owns
func (s *Service) GetThread(ctx context.Context, caller Caller, threadID string) (models.Thread, error) {
	if _, err := s.authorizeThread(ctx, caller, threadID); err != nil {
		return models.Thread{}, err
	}
	return s.threads.GetThread(ctx, threadID)
}

// UpdateStatus moves a thread through its lifecycle; operators only
func (s *Service) UpdateStatus(ctx context.Context, caller Caller, threadID, status string) error {
	if !caller.IsOperator() {
		return apperr.ErrUnauthorized
	}
	if !models.ValidStatus(status) {
		return apperr.Validation("status", "Status must be one of open, in-progress, in-review, completed")
	}
	if _, err := s.authorizeThread(ctx, caller, threadID); err != nil {
		return err
	}
	return s.threads.UpdateStatus(ctx, threadID, status)
}

// Wait blocks until in-flight notifications finish
func (s *Service) Wait() {
	s.pending.Wait()
}

// authorizeThread is the single ownership check shared by every read, write
// and subscription. A missing thread is NotFound; a thread owned by someone
// else is Unauthorized.
func (s *Service) authorizeThread(ctx context.Context, caller Caller, threadID string) (database.ThreadOwnership, error) {
	if !caller.valid() {
		return database.ThreadOwnership{}, apperr.ErrUnauthorized
	}
	if project, ok := caller.Project(); ok && !project.SubscriptionActive {
		return database.ThreadOwnership{}, apperr.New(apperr.KindUnauthorized, "project subscription is not active")
	}
	if strings.TrimSpace(threadID) == "" {
		return database.ThreadOwnership{}, apperr.New(apperr.KindNotFound, "thread not found")
	}

	own, err := s.threads.GetOwnership(ctx, threadID)
	if err != nil {
		return database.ThreadOwnership{}, err
	}

	if caller.IsOperator() {
		if own.OwnerID != caller.OperatorID() {
			return database.ThreadOwnership{}, apperr.ErrUnauthorized
		}
		return own, nil
	}

	project, _ := caller.Project()
	if own.ProjectID != project.ID {
		return database.ThreadOwnership{}, apperr.ErrUnauthorized
	}
	return own, nil
}

// stamp returns a UTC timestamp at storage precision that never repeats or
// goes backwards within this process.
func (s *Service) stamp() time.Time {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()

	t := s.now().UTC().Truncate(time.Microsecond)
	if !t.After(s.lastStamp) {
		t = s.lastStamp.Add(time.Microsecond)
	}
	s.lastStamp = t
	return t
}

func normalize(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}

// Package conversationtest provides an in-memory backing store for tests of
// code built on the conversation service.
package conversationtest

import (
	"context"
	"sort"
	"sync"

	"feedbackhub/internal/apperr"
	"feedbackhub/internal/database"
	"feedbackhub/internal/models"
)

// Store keeps projects, threads and replies in memory. It satisfies the
// conversation repositories and the project lookup.
type Store struct {
	mu       sync.RWMutex
	projects map[string]models.Project
	threads  map[string]models.Thread
	replies  map[string][]models.Reply

	// FailInserts makes the next InsertReply calls fail with a transient error
	FailInserts int
	// FailLists makes the next ListReplies calls fail with a transient error
	FailLists int
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		projects: make(map[string]models.Project),
		threads:  make(map[string]models.Thread),
		replies:  make(map[string][]models.Reply),
	}
}

// AddProject registers a project
func (s *Store) AddProject(p models.Project) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects[p.ID] = p
}

// AddThread registers a thread directly
func (s *Store) AddThread(t models.Thread) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads[t.ID] = t
}

// GetByID implements conversation.ProjectLookup
func (s *Store) GetByID(_ context.Context, projectID string) (models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[projectID]
	if !ok {
		return models.Project{}, apperr.New(apperr.KindNotFound, "project not found")
	}
	return p, nil
}

// GetByAPIKey resolves a project by key
func (s *Store) GetByAPIKey(_ context.Context, apiKey string) (models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.projects {
		if p.APIKey == apiKey {
			return p, nil
		}
	}
	return models.Project{}, apperr.New(apperr.KindNotFound, "project not found")
}

// InsertThread implements conversation.ThreadRepository
func (s *Store) InsertThread(_ context.Context, thread models.Thread) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads[thread.ID] = thread
	return nil
}

// GetOwnership implements conversation.ThreadRepository
func (s *Store) GetOwnership(_ context.Context, threadID string) (database.ThreadOwnership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.threads[threadID]
	if !ok {
		return database.ThreadOwnership{}, apperr.New(apperr.KindNotFound, "thread not found")
	}
	return database.ThreadOwnership{
		ThreadID:  t.ID,
		ProjectID: t.ProjectID,
		OwnerID:   s.projects[t.ProjectID].OwnerID,
	}, nil
}

// GetThread implements conversation.ThreadRepository
func (s *Store) GetThread(_ context.Context, threadID string) (models.Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.threads[threadID]
	if !ok {
		return models.Thread{}, apperr.New(apperr.KindNotFound, "thread not found")
	}
	t.ReplyCount = len(s.replies[threadID])
	return t, nil
}

// ListByProject implements conversation.ThreadRepository
func (s *Store) ListByProject(_ context.Context, projectID string) ([]models.Thread, error) {
	return s.filter(func(t models.Thread) bool { return t.ProjectID == projectID }), nil
}

// ListByOwner implements conversation.ThreadRepository
func (s *Store) ListByOwner(_ context.Context, ownerID string) ([]models.Thread, error) {
	return s.filter(func(t models.Thread) bool { return s.projects[t.ProjectID].OwnerID == ownerID }), nil
}

func (s *Store) filter(keep func(models.Thread) bool) []models.Thread {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.Thread{}
	for _, t := range s.threads {
		if keep(t) {
			t.ReplyCount = len(s.replies[t.ID])
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// UpdateStatus implements conversation.ThreadRepository
func (s *Store) UpdateStatus(_ context.Context, threadID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.threads[threadID]
	if !ok {
		return apperr.New(apperr.KindNotFound, "thread not found")
	}
	t.Status = status
	s.threads[threadID] = t
	return nil
}

// InsertReply implements conversation.ReplyRepository
func (s *Store) InsertReply(_ context.Context, reply models.Reply) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailInserts > 0 {
		s.FailInserts--
		return apperr.New(apperr.KindTransientIO, "connection reset")
	}
	s.replies[reply.ThreadID] = append(s.replies[reply.ThreadID], reply)
	return nil
}

// ListReplies implements conversation.ReplyRepository
func (s *Store) ListReplies(_ context.Context, threadID string) ([]models.Reply, error) {
	s.mu.Lock()
	if s.FailLists > 0 {
		s.FailLists--
		s.mu.Unlock()
		return nil, apperr.New(apperr.KindTransientIO, "connection reset")
	}
	out := append([]models.Reply{}, s.replies[threadID]...)
	s.mu.Unlock()
	models.SortReplies(out)
	return out, nil
}

// SetFailInserts arms transient InsertReply failures
func (s *Store) SetFailInserts(n int) {
	s.mu.Lock()
	s.FailInserts = n
	s.mu.Unlock()
}

// SetFailLists arms transient ListReplies failures
func (s *Store) SetFailLists(n int) {
	s.mu.Lock()
	s.FailLists = n
	s.mu.Unlock()
}

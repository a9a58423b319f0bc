package database

import (
	"context"
	"fmt"

	"feedbackhub/internal/apperr"
	"feedbackhub/internal/models"
)

const threadColumns = `f.id, f.project_id, f.body, f.sender_identity, f.status, f.metadata, f.created_at`

// ThreadOwnership identifies who may read and write a thread's replies
type ThreadOwnership struct {
	ThreadID  string `db:"id"`
	ProjectID string `db:"project_id"`
	OwnerID   string `db:"owner_id"`
}

// ThreadStore persists feedback threads
type ThreadStore struct {
	writeClient *WriteClient
}

// NewThreadStore creates a new thread store
func NewThreadStore(writeClient *WriteClient) (*ThreadStore, error) {
	if writeClient == nil {
		return nil, fmt.Errorf("write client is required for thread store")
	}
	return &ThreadStore{writeClient: writeClient}, nil
}

// InsertThread stores a new thread
func (s *ThreadStore) InsertThread(ctx context.Context, thread models.Thread) error {
	query := `
		INSERT INTO feedback (id, project_id, body, sender_identity, status, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.writeClient.ExecuteWriteQuery(ctx, query,
		thread.ID, thread.ProjectID, thread.Body, thread.SenderIdentity, thread.Status, thread.Metadata, thread.CreatedAt)
	if err != nil {
		return classify(err, "failed to insert thread")
	}
	return nil
}

// GetOwnership resolves the owning project and operator of a thread
func (s *ThreadStore) GetOwnership(ctx context.Context, threadID string) (ThreadOwnership, error) {
	query := `
		SELECT f.id, f.project_id, p.owner_id
		FROM feedback f
		JOIN projects p ON p.id = f.project_id
		WHERE f.id = ?
	`

	var own ThreadOwnership
	if err := s.writeClient.ExecuteWriteQuerySingle(ctx, &own, query, threadID); err != nil {
		return ThreadOwnership{}, classify(err, "thread not found")
	}
	return own, nil
}

// GetThread loads a thread with its reply count
func (s *ThreadStore) GetThread(ctx context.Context, threadID string) (models.Thread, error) {
	query := `
		SELECT ` + threadColumns + `,
			(SELECT COUNT(*) FROM replies r WHERE r.thread_id = f.id) AS reply_count
		FROM feedback f
		WHERE f.id = ?
	`

	var thread models.Thread
	if err := s.writeClient.ExecuteWriteQuerySingle(ctx, &thread, query, threadID); err != nil {
		return models.Thread{}, classify(err, "thread not found")
	}
	return thread, nil
}

// ListByProject returns a project's threads, newest first
func (s *ThreadStore) ListByProject(ctx context.Context, projectID string) ([]models.Thread, error) {
	query := `
		SELECT ` + threadColumns + `, COUNT(r.id) AS reply_count
		FROM feedback f
		LEFT JOIN replies r ON r.thread_id = f.id
		WHERE f.project_id = ?
		GROUP BY ` + threadColumns + `
		ORDER BY f.created_at DESC
	`
	return s.list(ctx, query, projectID)
}

// ListByOwner returns the threads of every project an operator owns, newest first
func (s *ThreadStore) ListByOwner(ctx context.Context, ownerID string) ([]models.Thread, error) {
	query := `
		SELECT ` + threadColumns + `, COUNT(r.id) AS reply_count
		FROM feedback f
		JOIN projects p ON p.id = f.project_id
		LEFT JOIN replies r ON r.thread_id = f.id
		WHERE p.owner_id = ?
		GROUP BY ` + threadColumns + `
		ORDER BY f.created_at DESC
	`
	return s.list(ctx, query, ownerID)
}

func (s *ThreadStore) list(ctx context.Context, query string, arg string) ([]models.Thread, error) {
	var threads []models.Thread
	if err := s.writeClient.ExecuteWriteQueryWithResult(ctx, &threads, query, arg); err != nil {
		return nil, classify(err, "failed to list threads")
	}
	if threads == nil {
		threads = []models.Thread{}
	}
	return threads, nil
}

// UpdateStatus changes the lifecycle status of a thread
func (s *ThreadStore) UpdateStatus(ctx context.Context, threadID, status string) error {
	query := `UPDATE feedback SET status = ? WHERE id = ?`
	res, err := s.writeClient.ExecuteWriteQuery(ctx, query, status, threadID)
	if err != nil {
		return classify(err, "failed to update thread status")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperr.New(apperr.KindNotFound, "thread not found")
	}
	return nil
}

package database

import (
	"context"
	"fmt"

	"feedbackhub/internal/models"
)

// ReplyStore is the append-only reply log of every thread
type ReplyStore struct {
	writeClient *WriteClient
}

// NewReplyStore creates a new reply store
func NewReplyStore(writeClient *WriteClient) (*ReplyStore, error) {
	if writeClient == nil {
		return nil, fmt.Errorf("write client is required for reply store")
	}
	return &ReplyStore{writeClient: writeClient}, nil
}

// InsertReply durably appends a reply; the row is committed when this returns
func (s *ReplyStore) InsertReply(ctx context.Context, reply models.Reply) error {
	query := `
		INSERT INTO replies (id, thread_id, body, author_role, author_label, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := s.writeClient.ExecuteWriteQuery(ctx, query,
		reply.ID, reply.ThreadID, reply.Body, reply.AuthorRole, reply.AuthorLabel, reply.CreatedAt)
	if err != nil {
		return classify(err, "failed to insert reply")
	}
	return nil
}

// ListReplies returns every reply of a thread in conversation order
func (s *ReplyStore) ListReplies(ctx context.Context, threadID string) ([]models.Reply, error) {
	query := `
		SELECT id, thread_id, body, author_role, author_label, created_at
		FROM replies
		WHERE thread_id = ?
		ORDER BY created_at ASC, id ASC
	`

	var replies []models.Reply
	if err := s.writeClient.ExecuteWriteQueryWithResult(ctx, &replies, query, threadID); err != nil {
		return nil, classify(err, "failed to list replies")
	}

	// Ensure we return an empty slice, not nil
	if replies == nil {
		replies = []models.Reply{}
	}

	return replies, nil
}

// GetReply loads a single reply by id
func (s *ReplyStore) GetReply(ctx context.Context, replyID string) (models.Reply, error) {
	query := `
		SELECT id, thread_id, body, author_role, author_label, created_at
		FROM replies
		WHERE id = ?
	`

	var reply models.Reply
	if err := s.writeClient.ExecuteWriteQuerySingle(ctx, &reply, query, replyID); err != nil {
		return models.Reply{}, classify(err, "failed to get reply")
	}
	return reply, nil
}

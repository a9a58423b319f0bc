package database

import (
	"context"
	"fmt"

	"feedbackhub/internal/models"
)

// ProjectStore reads project records; project CRUD lives elsewhere
type ProjectStore struct {
	writeClient *WriteClient
}

// NewProjectStore creates a new project store
func NewProjectStore(writeClient *WriteClient) (*ProjectStore, error) {
	if writeClient == nil {
		return nil, fmt.Errorf("write client is required for project store")
	}
	return &ProjectStore{writeClient: writeClient}, nil
}

// GetByAPIKey resolves the project an embed API key belongs to
func (s *ProjectStore) GetByAPIKey(ctx context.Context, apiKey string) (models.Project, error) {
	query := `
		SELECT id, name, api_key, owner_id, owner_email, subscription_active
		FROM projects
		WHERE api_key = ?
	`

	var project models.Project
	if err := s.writeClient.ExecuteWriteQuerySingle(ctx, &project, query, apiKey); err != nil {
		return models.Project{}, classify(err, "project not found")
	}
	return project, nil
}

// GetByID loads a project by id
func (s *ProjectStore) GetByID(ctx context.Context, projectID string) (models.Project, error) {
	query := `
		SELECT id, name, api_key, owner_id, owner_email, subscription_active
		FROM projects
		WHERE id = ?
	`

	var project models.Project
	if err := s.writeClient.ExecuteWriteQuerySingle(ctx, &project, query, projectID); err != nil {
		return models.Project{}, classify(err, "project not found")
	}
	return project, nil
}

// Package servertest runs the full HTTP surface over in-memory storage for
// integration tests of clients.
package servertest

import (
	"net/http/httptest"
	"testing"
	"time"

	"feedbackhub/internal/config"
	"feedbackhub/internal/conversation"
	"feedbackhub/internal/conversation/conversationtest"
	"feedbackhub/internal/models"
	"feedbackhub/internal/realtime"
	"feedbackhub/internal/server"

	"github.com/rs/zerolog"
)

// Fixture identities
const (
	APIKey        = "key-acme"
	OtherAPIKey   = "key-beta"
	OperatorID    = "op-acme"
	AdminUser     = "admin"
	AdminPassword = "secret"
)

// Projects seeded into every harness
var (
	Acme = models.Project{ID: "p-acme", Name: "Acme", APIKey: APIKey, OwnerID: OperatorID, OwnerEmail: "owner@acme.test", SubscriptionActive: true}
	Beta = models.Project{ID: "p-beta", Name: "Beta", APIKey: OtherAPIKey, OwnerID: "op-beta", OwnerEmail: "owner@beta.test", SubscriptionActive: true}
)

// Harness is a running server backed by memory
type Harness struct {
	URL      string
	Store    *conversationtest.Store
	Hub      *realtime.Hub
	Service  *conversation.Service
	Server   *server.Server
	HTTP     *httptest.Server
	Config   *config.Config
	Operator conversation.Caller
}

// New starts a harness; it is shut down with the test
func New(t testing.TB) *Harness {
	t.Helper()

	cfg := &config.Config{
		Version:           "test",
		AdminUsername:     AdminUser,
		AdminPassword:     AdminPassword,
		AdminOperatorID:   OperatorID,
		HeartbeatInterval: time.Second,
		ProjectCacheTTL:   time.Minute,
		StoreMaxRetries:   2,
	}

	store := conversationtest.NewStore()
	store.AddProject(Acme)
	store.AddProject(Beta)

	hub := realtime.NewHub(64)
	svc, err := conversation.NewService(store, store, store, conversation.WithPublisher(hub))
	if err != nil {
		t.Fatalf("conversation service: %v", err)
	}

	srv := server.New(cfg, nil, zerolog.Nop(), server.Services{
		Conversations: svc,
		Authorizer:    svc,
		Projects:      store,
		Feed:          hub,
	})
	srv.Initialize()

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		_ = hub.Close()
		ts.Close()
		svc.Wait()
	})

	return &Harness{
		URL:      ts.URL,
		Store:    store,
		Hub:      hub,
		Service:  svc,
		Server:   srv,
		HTTP:     ts,
		Config:   cfg,
		Operator: conversation.OperatorCaller(OperatorID),
	}
}

// AddThread seeds an empty thread for a project
func (h *Harness) AddThread(id string, project models.Project) {
	h.Store.AddThread(models.Thread{
		ID:        id,
		ProjectID: project.ID,
		Body:      "Feedback " + id,
		Status:    models.StatusOpen,
		CreatedAt: time.Now().UTC(),
	})
}

// OperatorToken logs the fixture operator in
func (h *Harness) OperatorToken(t testing.TB) string {
	t.Helper()
	token, err := h.Server.Auth().Authenticate(AdminUser, AdminPassword)
	if err != nil {
		t.Fatalf("operator login: %v", err)
	}
	return token
}

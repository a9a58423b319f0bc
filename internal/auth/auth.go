package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"feedbackhub/internal/apperr"
	"feedbackhub/internal/config"
	"feedbackhub/internal/conversation"
	"feedbackhub/internal/models"

	"github.com/labstack/echo/v4"
)

const (
	// ContextKeyOperator holds the signed-in operator id
	ContextKeyOperator = "operator_id"
	// ContextKeyProject holds the project resolved from an API key
	ContextKeyProject = "project"
)

type session struct {
	operatorID string
	expiresAt  time.Time
}

// Manager issues and validates operator dashboard sessions
type Manager struct {
	config      *config.Config
	tokens      map[string]session
	mu          sync.RWMutex
	tokenExpiry time.Duration
	now         func() time.Time
}

// NewManager creates a new authentication manager
func NewManager(cfg *config.Config) *Manager {
	return &Manager{
		config:      cfg,
		tokens:      make(map[string]session),
		tokenExpiry: 24 * time.Hour, // Tokens expire after 24 hours
		now:         time.Now,
	}
}

// Authenticate validates username and password and returns a session token
func (am *Manager) Authenticate(username, password string) (string, error) {
	if am.config.AdminUsername == "" || am.config.AdminPassword == "" {
		return "", fmt.Errorf("operator login not configured")
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(am.config.AdminUsername)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(am.config.AdminPassword)) == 1
	if !userOK || !passOK {
		return "", fmt.Errorf("invalid credentials")
	}

	// Generate a secure random token
	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	token := base64.URLEncoding.EncodeToString(tokenBytes)

	am.mu.Lock()
	am.tokens[token] = session{
		operatorID: am.config.AdminOperatorID,
		expiresAt:  am.now().Add(am.tokenExpiry),
	}
	am.mu.Unlock()

	// Clean up expired tokens in background
	go am.cleanupExpiredTokens()

	return token, nil
}

// Operator returns the operator bound to a valid token
func (am *Manager) Operator(token string) (string, bool) {
	am.mu.RLock()
	s, exists := am.tokens[token]
	am.mu.RUnlock()

	if !exists {
		return "", false
	}
	if am.now().After(s.expiresAt) {
		am.mu.Lock()
		delete(am.tokens, token)
		am.mu.Unlock()
		return "", false
	}
	return s.operatorID, true
}

// ValidateToken checks if a token is valid
func (am *Manager) ValidateToken(token string) bool {
	_, ok := am.Operator(token)
	return ok
}

// Revoke ends a session
func (am *Manager) Revoke(token string) {
	am.mu.Lock()
	delete(am.tokens, token)
	am.mu.Unlock()
}

// cleanupExpiredTokens removes expired tokens
func (am *Manager) cleanupExpiredTokens() {
	am.mu.Lock()
	defer am.mu.Unlock()

	now := am.now()
	for token, s := range am.tokens {
		if now.After(s.expiresAt) {
			delete(am.tokens, token)
		}
	}
}

// Middleware creates middleware for operator route authentication
func Middleware(authManager *Manager) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			// Get token from Authorization header or query parameter
			token := c.Request().Header.Get("Authorization")
			if token != "" {
				token = strings.TrimPrefix(token, "Bearer ")
			} else {
				// EventSource cannot set headers
				token = c.QueryParam("token")
			}

			operatorID, ok := authManager.Operator(token)
			if token == "" || !ok {
				return unauthorized(c, "Unauthorized. Please login first.")
			}

			c.Set("auth_token", token)
			c.Set(ContextKeyOperator, operatorID)

			return next(c)
		}
	}
}

// Caller returns the conversation caller attached by either middleware
func Caller(c echo.Context) (conversation.Caller, error) {
	if id, ok := c.Get(ContextKeyOperator).(string); ok && id != "" {
		return conversation.OperatorCaller(id), nil
	}
	if p, ok := c.Get(ContextKeyProject).(models.Project); ok {
		return conversation.ProjectCaller(p), nil
	}
	return conversation.Caller{}, apperr.ErrUnauthorized
}

func unauthorized(c echo.Context, msg string) error {
	return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
		Error: msg,
		Code:  apperr.KindUnauthorized.String(),
	})
}

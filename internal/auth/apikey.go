package auth

import (
	"context"
	"strings"
	"time"

	"feedbackhub/internal/apperr"
	"feedbackhub/internal/cache"
	"feedbackhub/internal/models"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// APIKeyHeader carries the embed API key
const APIKeyHeader = "X-API-Key"

// ProjectKeyLookup resolves a project by its embed API key
type ProjectKeyLookup interface {
	GetByAPIKey(ctx context.Context, apiKey string) (models.Project, error)
}

// ProjectResolver resolves API keys to projects through a short-lived cache
type ProjectResolver struct {
	store ProjectKeyLookup
	cache *cache.Cache
	ttl   time.Duration
}

// NewProjectResolver creates a resolver; a non-positive ttl disables caching
func NewProjectResolver(store ProjectKeyLookup, c *cache.Cache, ttl time.Duration) *ProjectResolver {
	return &ProjectResolver{store: store, cache: c, ttl: ttl}
}

// Resolve returns the project owning apiKey. Unknown keys are Unauthorized.
func (r *ProjectResolver) Resolve(ctx context.Context, apiKey string) (models.Project, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return models.Project{}, apperr.New(apperr.KindUnauthorized, "missing API key")
	}

	key := "apikey:" + apiKey
	if r.cache != nil {
		if v, ok := r.cache.Get(key); ok {
			if p, ok := v.(models.Project); ok {
				return p, nil
			}
		}
	}

	project, err := r.store.GetByAPIKey(ctx, apiKey)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return models.Project{}, apperr.New(apperr.KindUnauthorized, "invalid API key")
		}
		return models.Project{}, err
	}

	if r.cache != nil {
		r.cache.Set(key, project, r.ttl)
	}
	return project, nil
}

// APIKeyMiddleware resolves the X-API-Key header (or api_key query parameter)
// to a project and stores it on the context.
func APIKeyMiddleware(resolver *ProjectResolver, logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			apiKey := c.Request().Header.Get(APIKeyHeader)
			if apiKey == "" {
				apiKey = c.QueryParam("api_key")
			}

			project, err := resolver.Resolve(c.Request().Context(), apiKey)
			if err != nil {
				if apperr.Is(err, apperr.KindUnauthorized) {
					return unauthorized(c, "Invalid or missing API key")
				}
				logger.Error().Err(err).Msg("Failed to resolve API key")
				kind := apperr.KindOf(err)
				return c.JSON(apperr.HTTPStatus(kind), models.ErrorResponse{
					Error: "Service temporarily unavailable",
					Code:  kind.String(),
				})
			}

			c.Set(ContextKeyProject, project)
			return next(c)
		}
	}
}

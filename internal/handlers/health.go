package handlers

import (
	"context"
	"net/http"
	"time"

	"feedbackhub/internal/database"
	"feedbackhub/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
)

const dbCheckTimeout = 5 * time.Second

// HealthHandler reports that the process is serving
// @Summary Liveness check
// @Tags health
// @Produce json
// @Success 200 {object} models.HealthResponse
// @Router /healthz [get]
func HealthHandler(version string) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, models.HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC(),
			Version:   version,
		})
	}
}

// DBHealthHandler runs a read-only round trip against the database, bounded
// by the request's context.
// @Summary Database check
// @Tags health
// @Produce json
// @Success 200 {object} models.DBHealthResponse
// @Failure 503 {object} models.DBHealthResponse
// @Router /healthz/db [get]
func DBHealthHandler(db *sqlx.DB) echo.HandlerFunc {
	return func(c echo.Context) error {
		resp := checkDB(c.Request().Context(), db)
		if !resp.Connected {
			return c.JSON(http.StatusServiceUnavailable, resp)
		}
		return c.JSON(http.StatusOK, resp)
	}
}

func checkDB(ctx context.Context, db *sqlx.DB) models.DBHealthResponse {
	resp := models.DBHealthResponse{Status: "unhealthy", Timestamp: time.Now().UTC()}
	if db == nil {
		resp.Error = "no database configured"
		return resp
	}

	ctx, cancel := context.WithTimeout(ctx, dbCheckTimeout)
	defer cancel()

	start := time.Now()
	err := database.ExecuteReadOnlyPing(ctx, db)
	resp.Latency = time.Since(start)
	if err != nil {
		resp.Error = "database unreachable: " + err.Error()
		return resp
	}

	resp.Status = "healthy"
	resp.Connected = true
	return resp
}

// RootHandler describes the running service
func RootHandler(version string) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"service": "Feedbackhub API",
			"version": version,
			"status":  "running",
		})
	}
}

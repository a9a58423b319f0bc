package handlers

import (
	"fmt"
	"net/http"

	"feedbackhub/internal/auth"
	"feedbackhub/internal/models"

	"github.com/labstack/echo/v4"
)

// AdminLoginHandler handles operator authentication
// @Summary Operator login
// @Description Authenticate an operator and receive a bearer token for the dashboard API
// @Tags admin
// @Accept json
// @Produce json
// @Param request body models.AdminAuthRequest true "Login credentials"
// @Success 200 {object} models.AdminAuthResponse
// @Failure 400 {object} models.AdminAuthResponse
// @Failure 401 {object} models.AdminAuthResponse
// @Router /api/admin/login [post]
func AdminLoginHandler(authManager *auth.Manager) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req models.AdminAuthRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, models.AdminAuthResponse{
				Success: false,
				Error:   fmt.Sprintf("Invalid request body: %v", err),
			})
		}

		token, err := authManager.Authenticate(req.Username, req.Password)
		if err != nil {
			return c.JSON(http.StatusUnauthorized, models.AdminAuthResponse{
				Success: false,
				Error:   "Invalid username or password",
			})
		}

		return c.JSON(http.StatusOK, models.AdminAuthResponse{
			Success: true,
			Token:   token,
		})
	}
}

// AdminLogoutHandler revokes the current operator session
// @Summary Operator logout
// @Tags admin
// @Security BearerAuth
// @Success 204
// @Router /api/admin/logout [post]
func AdminLogoutHandler(authManager *auth.Manager) echo.HandlerFunc {
	return func(c echo.Context) error {
		if token, ok := c.Get("auth_token").(string); ok {
			authManager.Revoke(token)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

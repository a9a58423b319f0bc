package handlers

import (
	"context"
	"net/http"

	"feedbackhub/internal/auth"
	"feedbackhub/internal/conversation"
	"feedbackhub/internal/livechannel"
	"feedbackhub/internal/models"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// ConversationService is the conversation store surface used by the handlers
type ConversationService interface {
	SubmitThread(ctx context.Context, caller conversation.Caller, body, sender string, metadata models.ThreadMetadata) (models.Thread, error)
	ListThreads(ctx context.Context, caller conversation.Caller) ([]models.Thread, error)
	ListReplies(ctx context.Context, caller conversation.Caller, threadID string) ([]models.Reply, error)
	AppendReply(ctx context.Context, caller conversation.Caller, threadID, body, role, label string) (models.Reply, error)
	UpdateStatus(ctx context.Context, caller conversation.Caller, threadID, status string) error
}

// SubmitThreadHandler creates a feedback thread from the widget
// @Summary Submit feedback
// @Description Create a new feedback thread for the project owning the API key
// @Tags widget
// @Accept json
// @Produce json
// @Param X-API-Key header string true "Project API key"
// @Param request body models.SubmitThreadRequest true "Feedback"
// @Success 201 {object} models.SubmitThreadResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Failure 503 {object} models.ErrorResponse
// @Router /api/widget/threads [post]
func SubmitThreadHandler(svc ConversationService, logger zerolog.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		caller, err := auth.Caller(c)
		if err != nil {
			return writeError(c, logger, err)
		}

		var req models.SubmitThreadRequest
		if err := c.Bind(&req); err != nil {
			return writeError(c, logger, err)
		}
		if err := c.Validate(&req); err != nil {
			return writeError(c, logger, err)
		}

		thread, err := svc.SubmitThread(c.Request().Context(), caller, req.Body, req.SenderIdentity, req.Metadata)
		if err != nil {
			return writeError(c, logger, err)
		}

		return c.JSON(http.StatusCreated, models.SubmitThreadResponse{ThreadID: thread.ID})
	}
}

// ListThreadsHandler lists the caller's threads with their reply counts
// @Summary List threads
// @Description List feedback threads, newest first
// @Tags widget
// @Produce json
// @Param X-API-Key header string true "Project API key"
// @Success 200 {object} models.ThreadListResponse
// @Failure 401 {object} models.ErrorResponse
// @Failure 503 {object} models.ErrorResponse
// @Router /api/widget/threads [get]
func ListThreadsHandler(svc ConversationService, maxRetries int, logger zerolog.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		caller, err := auth.Caller(c)
		if err != nil {
			return writeError(c, logger, err)
		}

		ctx := c.Request().Context()
		threads, err := withRetry(ctx, maxRetries, func() ([]models.Thread, error) {
			return svc.ListThreads(ctx, caller)
		})
		if err != nil {
			return writeError(c, logger, err)
		}

		return c.JSON(http.StatusOK, models.ThreadListResponse{Threads: threads})
	}
}

// ListRepliesHandler returns a thread's full reply history in conversation order
// @Summary List replies
// @Description Full ordered reply history of one thread
// @Tags widget
// @Produce json
// @Param X-API-Key header string true "Project API key"
// @Param threadId path string true "Thread ID"
// @Success 200 {object} models.ReplyListResponse
// @Failure 401 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 503 {object} models.ErrorResponse
// @Router /api/widget/threads/{threadId}/replies [get]
func ListRepliesHandler(svc ConversationService, maxRetries int, logger zerolog.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		caller, err := auth.Caller(c)
		if err != nil {
			return writeError(c, logger, err)
		}

		ctx := c.Request().Context()
		threadID := c.Param("threadId")
		replies, err := withRetry(ctx, maxRetries, func() ([]models.Reply, error) {
			return svc.ListReplies(ctx, caller, threadID)
		})
		if err != nil {
			return writeError(c, logger, err)
		}

		return c.JSON(http.StatusOK, models.ReplyListResponse{Replies: replies})
	}
}

// AppendReplyHandler posts a visitor reply from the widget
// @Summary Reply to a thread
// @Description Append an external-sender reply; sender_identity must be an email address
// @Tags widget
// @Accept json
// @Produce json
// @Param X-API-Key header string true "Project API key"
// @Param threadId path string true "Thread ID"
// @Param request body models.AppendReplyRequest true "Reply"
// @Success 201 {object} models.Reply
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 503 {object} models.ErrorResponse
// @Router /api/widget/threads/{threadId}/replies [post]
func AppendReplyHandler(svc ConversationService, logger zerolog.Logger) echo.HandlerFunc {
	return appendReply(svc, logger, models.RoleExternalSender)
}

// OperatorReplyHandler posts an operator reply from the dashboard
// @Summary Reply as operator
// @Description Append an operator reply to a thread the operator owns
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param threadId path string true "Thread ID"
// @Param request body models.AppendReplyRequest true "Reply"
// @Success 201 {object} models.Reply
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 503 {object} models.ErrorResponse
// @Router /api/admin/threads/{threadId}/replies [post]
func OperatorReplyHandler(svc ConversationService, logger zerolog.Logger) echo.HandlerFunc {
	return appendReply(svc, logger, models.RoleOperator)
}

// Appends are not retried here: a retry after an ambiguous failure could
// store the reply twice under different ids.
func appendReply(svc ConversationService, logger zerolog.Logger, role string) echo.HandlerFunc {
	return func(c echo.Context) error {
		caller, err := auth.Caller(c)
		if err != nil {
			return writeError(c, logger, err)
		}

		var req models.AppendReplyRequest
		if err := c.Bind(&req); err != nil {
			return writeError(c, logger, err)
		}

		label := req.SenderIdentity
		if role == models.RoleOperator {
			label = models.OperatorLabel
		}

		reply, err := svc.AppendReply(c.Request().Context(), caller, c.Param("threadId"), req.Body, role, label)
		if err != nil {
			return writeError(c, logger, err)
		}

		return c.JSON(http.StatusCreated, reply)
	}
}

// StreamHandler opens the live reply stream for one thread
// @Summary Subscribe to a thread
// @Description Server-Sent Events: "connected", then "new-reply" per inserted reply, with ": heartbeat" comments. API key may be passed as api_key query parameter.
// @Tags widget
// @Produce text/event-stream
// @Param X-API-Key header string false "Project API key"
// @Param api_key query string false "Project API key"
// @Param threadId path string true "Thread ID"
// @Success 200 {string} string "event stream"
// @Failure 401 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /api/widget/threads/{threadId}/stream [get]
func StreamHandler(ch *livechannel.Channel, logger zerolog.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		caller, err := auth.Caller(c)
		if err != nil {
			return writeError(c, logger, err)
		}

		err = ch.Serve(c.Request().Context(), c.Response(), caller, c.Param("threadId"))
		if err != nil && !c.Response().Committed {
			return writeError(c, logger, err)
		}
		return nil
	}
}

// UpdateStatusHandler moves a thread through its lifecycle
// @Summary Update thread status
// @Description Set status to open, in-progress, in-review or completed
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param threadId path string true "Thread ID"
// @Param request body models.UpdateStatusRequest true "New status"
// @Success 204
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /api/admin/threads/{threadId}/status [patch]
func UpdateStatusHandler(svc ConversationService, logger zerolog.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		caller, err := auth.Caller(c)
		if err != nil {
			return writeError(c, logger, err)
		}

		var req models.UpdateStatusRequest
		if err := c.Bind(&req); err != nil {
			return writeError(c, logger, err)
		}

		if err := svc.UpdateStatus(c.Request().Context(), caller, c.Param("threadId"), req.Status); err != nil {
			return writeError(c, logger, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

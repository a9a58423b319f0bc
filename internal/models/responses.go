package models

import "time"

// HealthResponse represents a basic health check response
// @Description Health check response
type HealthResponse struct {
	Status    string    `json:"status" example:"healthy"`                 // Health status
	Timestamp time.Time `json:"timestamp" example:"2023-01-01T00:00:00Z"` // Timestamp of the check
	Version   string    `json:"version" example:"1.0.0"`                  // Application version
}

// DBHealthResponse represents a database health check response
// @Description Database health check response
type DBHealthResponse struct {
	Status    string        `json:"status" example:"healthy"`                   // Health status
	Timestamp time.Time     `json:"timestamp" example:"2023-01-01T00:00:00Z"`   // Timestamp of the check
	Connected bool          `json:"connected" example:"true"`                   // Database connection status
	Latency   time.Duration `json:"latency" swaggertype:"string" example:"1ms"` // Database ping latency
	Error     string        `json:"error,omitempty" example:""`                 // Error message if any
}

// ErrorResponse is returned for every failed API request
// @Description Error payload
type ErrorResponse struct {
	Error string `json:"error" example:"Please enter a valid email address"` // User-facing message
	Code  string `json:"code" example:"validation_error"`                    // Machine-readable error kind
	Field string `json:"field,omitempty" example:"sender_identity"`          // Offending field for validation errors
}

// SubmitThreadRequest is the widget's new feedback payload
// @Description New feedback submission
type SubmitThreadRequest struct {
	Body           string         `json:"body" validate:"required" example:"The checkout button does nothing"`
	SenderIdentity string         `json:"sender_identity" validate:"omitempty,max=320" example:"a@b.com"`
	Metadata       ThreadMetadata `json:"metadata"`
}

// SubmitThreadResponse carries the identifier of a newly created thread
// @Description New feedback result
type SubmitThreadResponse struct {
	ThreadID string `json:"thread_id" example:"0190f3a4-7c2e-7d4b-9a51-3e0c5b6f2a10"`
}

// ThreadListResponse lists the threads of a project
// @Description Thread list
type ThreadListResponse struct {
	Threads []Thread `json:"threads"`
}

// ReplyListResponse lists the replies of a thread in conversation order
// @Description Reply list
type ReplyListResponse struct {
	Replies []Reply `json:"replies"`
}

// AppendReplyRequest is the payload for posting a reply
// @Description New reply
type AppendReplyRequest struct {
	Body           string `json:"body" example:"Still broken on Safari"`
	SenderIdentity string `json:"sender_identity,omitempty" example:"a@b.com"` // Required for external senders
}

// UpdateStatusRequest changes a thread's lifecycle status
// @Description Status change
type UpdateStatusRequest struct {
	Status string `json:"status" example:"in-progress"`
}

// AdminAuthRequest represents operator login credentials
// @Description Operator login payload
type AdminAuthRequest struct {
	Username string `json:"username" example:"admin"`
	Password string `json:"password" example:"secret"`
}

// AdminAuthResponse carries the operator session token
// @Description Operator login result
type AdminAuthResponse struct {
	Success bool   `json:"success" example:"true"`
	Token   string `json:"token,omitempty"`
	Error   string `json:"error,omitempty" example:""`
}

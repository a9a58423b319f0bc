package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Thread lifecycle statuses
const (
	StatusOpen       = "open"
	StatusInProgress = "in-progress"
	StatusInReview   = "in-review"
	StatusCompleted  = "completed"
)

// Reply author roles
const (
	RoleOperator       = "operator"
	RoleExternalSender = "external-sender"
)

// OperatorLabel is the fixed author label shown for operator replies
const OperatorLabel = "Support Team"

// MaxConsoleEntries caps the console log ring buffer attached to a thread
const MaxConsoleEntries = 50

// ValidStatus reports whether s is one of the thread lifecycle statuses
func ValidStatus(s string) bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusInReview, StatusCompleted:
		return true
	}
	return false
}

// Project is the owning tenant of threads, resolved from an API key or an operator session
type Project struct {
	ID                 string `db:"id" json:"id"`
	Name               string `db:"name" json:"name"`
	APIKey             string `db:"api_key" json:"-"`
	OwnerID            string `db:"owner_id" json:"owner_id"`
	OwnerEmail         string `db:"owner_email" json:"owner_email"`
	SubscriptionActive bool   `db:"subscription_active" json:"subscription_active"`
}

// ConsoleEntry is one captured console line from the host page
type ConsoleEntry struct {
	Type      string    `json:"type" example:"error"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message" example:"TypeError: x is undefined"`
}

// ThreadMetadata is the point-in-time environment snapshot attached to a thread
type ThreadMetadata struct {
	URL         string         `json:"url,omitempty" example:"https://example.com/pricing"`
	UserAgent   string         `json:"user_agent,omitempty"`
	Screen      string         `json:"screen,omitempty" example:"1920x1080"`
	Viewport    string         `json:"viewport,omitempty" example:"1280x720"`
	Locale      string         `json:"locale,omitempty" example:"en-US"`
	ConsoleLogs []ConsoleEntry `json:"console_logs,omitempty"`
}

// Value implements driver.Valuer so metadata is stored as a JSON column
func (m ThreadMetadata) Value() (driver.Value, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner for the JSON metadata column
func (m *ThreadMetadata) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*m = ThreadMetadata{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported metadata column type %T", src)
	}
	if len(raw) == 0 {
		*m = ThreadMetadata{}
		return nil
	}
	return json.Unmarshal(raw, m)
}

// Thread is one feedback submission and the root of its reply conversation
// @Description Feedback thread
type Thread struct {
	ID             string         `db:"id" json:"id" example:"0190f3a4-7c2e-7d4b-9a51-3e0c5b6f2a10"`
	ProjectID      string         `db:"project_id" json:"-"`
	Body           string         `db:"body" json:"body" example:"The checkout button does nothing"`
	SenderIdentity string         `db:"sender_identity" json:"sender_identity" example:"a@b.com"`
	Status         string         `db:"status" json:"status" example:"open"`
	Metadata       ThreadMetadata `db:"metadata" json:"metadata"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	ReplyCount     int            `db:"reply_count" json:"reply_count"`
}

// Reply is one immutable message within a thread
// @Description Reply within a feedback thread
type Reply struct {
	ID          string    `db:"id" json:"id" example:"0190f3a5-01aa-7bbb-8ccc-0d1e2f3a4b5c"`
	ThreadID    string    `db:"thread_id" json:"thread_id"`
	Body        string    `db:"body" json:"body" example:"Still broken on Safari"`
	AuthorRole  string    `db:"author_role" json:"author_role" example:"external-sender"`
	AuthorLabel string    `db:"author_label" json:"author_label" example:"a@b.com"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Before reports whether r sorts before o in the conversation's total order:
// creation time first, identifier as the tie-breaker.
func (r Reply) Before(o Reply) bool {
	if !r.CreatedAt.Equal(o.CreatedAt) {
		return r.CreatedAt.Before(o.CreatedAt)
	}
	return r.ID < o.ID
}

// SortReplies sorts replies into conversation order in place
func SortReplies(replies []Reply) {
	sort.SliceStable(replies, func(i, j int) bool {
		return replies[i].Before(replies[j])
	})
}

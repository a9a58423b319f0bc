package widget

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"feedbackhub/internal/models"
)

// ConsoleBuffer keeps the most recent console lines of the host page. Once
// full, each new line evicts the oldest.
type ConsoleBuffer struct {
	mu      sync.Mutex
	entries []models.ConsoleEntry
	next    int
	full    bool
	now     func() time.Time
}

// NewConsoleBuffer creates a buffer holding up to capacity lines; a
// non-positive capacity uses models.MaxConsoleEntries.
func NewConsoleBuffer(capacity int) *ConsoleBuffer {
	if capacity <= 0 {
		capacity = models.MaxConsoleEntries
	}
	return &ConsoleBuffer{
		entries: make([]models.ConsoleEntry, capacity),
		now:     time.Now,
	}
}

// Record captures one console line stamped with the current time
func (b *ConsoleBuffer) Record(level, message string) {
	b.Add(models.ConsoleEntry{Type: level, Timestamp: b.now().UTC(), Message: message})
}

// Add captures one console line
func (b *ConsoleBuffer) Add(e models.ConsoleEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[b.next] = e
	b.next = (b.next + 1) % len(b.entries)
	if b.next == 0 {
		b.full = true
	}
}

// Len returns the number of lines held
func (b *ConsoleBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.full {
		return len(b.entries)
	}
	return b.next
}

// Snapshot returns the held lines oldest first
func (b *ConsoleBuffer) Snapshot() []models.ConsoleEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.full {
		return append([]models.ConsoleEntry(nil), b.entries[:b.next]...)
	}
	out := make([]models.ConsoleEntry, 0, len(b.entries))
	out = append(out, b.entries[b.next:]...)
	return append(out, b.entries[:b.next]...)
}

// Write lets the buffer act as a log sink. Each line of p is one entry; zerolog
// JSON lines keep their level and message, anything else is recorded as "log".
func (b *ConsoleBuffer) Write(p []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		if line == "" {
			continue
		}
		var ev struct {
			Level   string `json:"level"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal([]byte(line), &ev); err == nil && ev.Message != "" {
			level := ev.Level
			if level == "" {
				level = "log"
			}
			b.Record(level, ev.Message)
			continue
		}
		b.Record("log", line)
	}
	return len(p), nil
}

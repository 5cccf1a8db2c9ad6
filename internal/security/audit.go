package security

import (
	"sync"
	"time"
)

// AuditEntry records one access decision or security-relevant action.
type AuditEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	UserID    string         `json:"user_id,omitempty"`
	Role      string         `json:"role,omitempty"`
	Action    string         `json:"action"`
	Allowed   bool           `json:"allowed"`
	Details   map[string]any `json:"details,omitempty"`
}

// AuditFilter selects audit entries. Zero fields match everything.
type AuditFilter struct {
	UserID string
	Action string
	Since  time.Time
	// Limit keeps only the newest N matches.
	Limit int
}

func (f AuditFilter) match(e AuditEntry) bool {
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	return true
}

// auditLog is a fixed-capacity ring buffer; the oldest entries drop first.
type auditLog struct {
	mu      sync.Mutex
	entries []AuditEntry
	next    int
	full    bool
}

func newAuditLog(capacity int) *auditLog {
	if capacity <= 0 {
		return nil
	}
	return &auditLog{entries: make([]AuditEntry, capacity)}
}

func (l *auditLog) add(e AuditEntry) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries[l.next] = e
	l.next = (l.next + 1) % len(l.entries)
	if l.next == 0 {
		l.full = true
	}
}

// list returns matching entries oldest first.
func (l *auditLog) list(f AuditFilter) []AuditEntry {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	var ordered []AuditEntry
	if l.full {
		ordered = append(ordered, l.entries[l.next:]...)
	}
	ordered = append(ordered, l.entries[:l.next]...)

	out := make([]AuditEntry, 0, len(ordered))
	for _, e := range ordered {
		if f.match(e) {
			out = append(out, e)
		}
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	return out
}

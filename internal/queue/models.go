package queue

import (
	"strings"
	"time"
)

// Kind identifies the artifact family an item carries.
type Kind string

const (
	KindDocument  Kind = "document"
	KindBiometric Kind = "biometric"
)

// ParseKind converts a string into a known Kind.
func ParseKind(value string) (Kind, bool) {
	normalized := Kind(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case KindDocument, KindBiometric:
		return normalized, true
	}
	return "", false
}

// Status represents the lifecycle of a queue item.
type Status string

const (
	StatusPending   Status = "pending"
	StatusUploading Status = "uploading"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

var allStatuses = []Status{
	StatusPending,
	StatusUploading,
	StatusCompleted,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// legalTransitions is the closed transition set for item statuses. Uploading
// may fall back to pending when an in-flight attempt is cancelled; failed
// returns to pending only through a retry.
var legalTransitions = map[Status][]Status{
	StatusPending:   {StatusUploading},
	StatusUploading: {StatusCompleted, StatusFailed, StatusPending},
	StatusFailed:    {StatusPending},
	StatusCompleted: {},
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to Status) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether a status ends an upload attempt's lifecycle.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Item represents one artifact pending transmission, persisted in SQLite.
// The id is stable across retries. Payload fields are immutable after insert;
// only status, counters, progress, and error detail change over time.
type Item struct {
	ID          string
	Kind        Kind
	PayloadPath string
	SizeBytes   int64
	Status      Status
	Attempts    int
	AutoRetries int
	LastError   string
	Progress    float64
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// NeedsManualRetry reports whether a failed item has exhausted its automatic
// retry budget and now requires an explicit user retry.
func (i Item) NeedsManualRetry(maxAutoRetries int) bool {
	return i.Status == StatusFailed && i.AutoRetries >= maxAutoRetries
}

// HealthSummary describes aggregated queue counts per lifecycle state.
type HealthSummary struct {
	Total     int
	Pending   int
	Uploading int
	Failed    int
	Completed int
}

// DatabaseHealth captures diagnostic information about the queue database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	TableExists      bool
	IntegrityCheck   bool
	TotalItems       int
	Error            string
}

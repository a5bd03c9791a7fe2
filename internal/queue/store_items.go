package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"veriflow/internal/faults"
)

const itemColumns = "id, kind, payload_path, size_bytes, status, attempts, auto_retries, last_error, progress, created_at, updated_at, completed_at"

// Enqueue inserts a new pending artifact and returns the stored item. The
// generated id stays stable across all later retries of the item.
func (s *Store) Enqueue(ctx context.Context, kind Kind, payloadPath string, sizeBytes int64) (*Item, error) {
	if _, ok := ParseKind(string(kind)); !ok {
		return nil, fmt.Errorf("unknown artifact kind %q", kind)
	}
	if payloadPath == "" {
		return nil, errors.New("payload path must not be empty")
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)

	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO queue_items (
            id, kind, payload_path, size_bytes, status, attempts, auto_retries,
            last_error, progress, created_at, updated_at, completed_at
        ) VALUES (?, ?, ?, ?, ?, 0, 0, NULL, 0, ?, ?, NULL)`,
		id,
		string(kind),
		payloadPath,
		sizeBytes,
		StatusPending,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, classifyStorageError("enqueue", err)
	}

	return s.GetByID(ctx, id)
}

// GetByID fetches a queue item by identifier, nil when absent.
func (s *Store) GetByID(ctx context.Context, id string) (*Item, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+itemColumns+` FROM queue_items WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// ListPending returns pending items ordered by creation time.
func (s *Store) ListPending(ctx context.Context) ([]*Item, error) {
	return s.List(ctx, StatusPending)
}

// List returns queue items filtered by status set (or all items when no
// status is provided), ordered by creation time.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Item, error) {
	ctx = ensureContext(ctx)
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + itemColumns + ` FROM queue_items`
	orderClause := ` ORDER BY created_at`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		rows, err = s.db.QueryContext(ctx, baseQuery+` WHERE status IN (`+placeholders+`)`+orderClause, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list queue items: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// MarkUploading transitions pending -> uploading.
func (s *Store) MarkUploading(ctx context.Context, id string) error {
	return s.transition(ctx, id, StatusPending, StatusUploading,
		`UPDATE queue_items SET status = ?, progress = 0, updated_at = ? WHERE id = ? AND status = ?`)
}

// MarkCompleted transitions uploading -> completed and stamps completion time.
func (s *Store) MarkCompleted(ctx context.Context, id string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE queue_items
         SET status = ?, progress = 100, last_error = NULL, completed_at = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusCompleted, now, now, id, StatusUploading,
	)
	if err != nil {
		return classifyStorageError("mark completed", err)
	}
	return requireTransition(res, id, StatusCompleted)
}

// MarkFailed transitions uploading -> failed, increments the attempt counter,
// and records the transport error for diagnostics.
func (s *Store) MarkFailed(ctx context.Context, id string, lastError string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE queue_items
         SET status = ?, attempts = attempts + 1, last_error = ?, progress = 0, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusFailed, nullableString(lastError), now, id, StatusUploading,
	)
	if err != nil {
		return classifyStorageError("mark failed", err)
	}
	return requireTransition(res, id, StatusFailed)
}

// Release returns a cancelled in-flight item to pending so it is safely
// retried; the attempt is not counted against the item.
func (s *Store) Release(ctx context.Context, id string) error {
	return s.transition(ctx, id, StatusUploading, StatusPending,
		`UPDATE queue_items SET status = ?, progress = 0, updated_at = ? WHERE id = ? AND status = ?`)
}

// Retry moves a failed item back to pending on explicit user request and
// resets its automatic retry budget.
func (s *Store) Retry(ctx context.Context, id string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE queue_items
         SET status = ?, auto_retries = 0, last_error = NULL, progress = 0, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusPending, now, id, StatusFailed,
	)
	if err != nil {
		return classifyStorageError("retry", err)
	}
	return requireTransition(res, id, StatusPending)
}

// RecordAutoRetry atomically schedules one automatic re-attempt for a failed
// item, bounded by maxAutoRetries. It reports whether the item was moved back
// to pending; items past the budget are left untouched.
func (s *Store) RecordAutoRetry(ctx context.Context, id string, maxAutoRetries int) (bool, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE queue_items
         SET status = ?, auto_retries = auto_retries + 1, progress = 0, updated_at = ?
         WHERE id = ? AND status = ? AND auto_retries < ?`,
		StatusPending, now, id, StatusFailed, maxAutoRetries,
	)
	if err != nil {
		return false, classifyStorageError("record auto retry", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// SetProgress updates the incremental upload progress (0-100) without
// changing status.
func (s *Store) SetProgress(ctx context.Context, id string, percent float64) error {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	_, err := s.execWithRetry(
		ctx,
		`UPDATE queue_items SET progress = ?, updated_at = ? WHERE id = ?`,
		percent, time.Now().UTC().Format(time.RFC3339Nano), id,
	)
	if err != nil {
		return classifyStorageError("set progress", err)
	}
	return nil
}

// PurgeCompleted removes completed items whose completion predates the cutoff.
func (s *Store) PurgeCompleted(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`DELETE FROM queue_items WHERE status = ? AND completed_at IS NOT NULL AND completed_at < ?`,
		StatusCompleted, olderThan.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, classifyStorageError("purge completed", err)
	}
	return res.RowsAffected()
}

// Remove deletes an item by identifier.
func (s *Store) Remove(ctx context.Context, id string) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM queue_items WHERE id = ?`, id)
	if err != nil {
		return false, classifyStorageError("remove", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// Clear removes all items from the queue.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM queue_items`)
	if err != nil {
		return 0, classifyStorageError("clear", err)
	}
	return res.RowsAffected()
}

// Stats returns a count of items grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT status, COUNT(1) FROM queue_items GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates queue state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case StatusPending:
			health.Pending += count
		case StatusUploading:
			health.Uploading += count
		case StatusFailed:
			health.Failed += count
		case StatusCompleted:
			health.Completed += count
		}
	}
	return health, nil
}

func (s *Store) transition(ctx context.Context, id string, from, to Status, query string) error {
	res, err := s.execWithRetry(ctx, query, to, time.Now().UTC().Format(time.RFC3339Nano), id, from)
	if err != nil {
		return classifyStorageError("transition", err)
	}
	return requireTransition(res, id, to)
}

func requireTransition(res sql.Result, id string, to Status) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("item %s: illegal transition to %s", id, to)
	}
	return nil
}

func classifyStorageError(operation string, err error) error {
	if err == nil {
		return nil
	}
	if isSQLiteFull(err) {
		return faults.Wrap(faults.ErrStorageFull, "queue", operation, "", err)
	}
	return faults.Wrap(faults.ErrStorageUnavailable, "queue", operation, "", err)
}

func scanItem(scanner interface{ Scan(dest ...any) error }) (*Item, error) {
	var (
		id           string
		kindStr      string
		payloadPath  string
		sizeBytes    int64
		statusStr    string
		attempts     int
		autoRetries  int
		lastError    sql.NullString
		progress     float64
		createdRaw   string
		updatedRaw   string
		completedRaw sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&kindStr,
		&payloadPath,
		&sizeBytes,
		&statusStr,
		&attempts,
		&autoRetries,
		&lastError,
		&progress,
		&createdRaw,
		&updatedRaw,
		&completedRaw,
	); err != nil {
		return nil, err
	}

	item := &Item{
		ID:          id,
		Kind:        Kind(kindStr),
		PayloadPath: payloadPath,
		SizeBytes:   sizeBytes,
		Status:      Status(statusStr),
		Attempts:    attempts,
		AutoRetries: autoRetries,
		LastError:   lastError.String,
		Progress:    progress,
	}

	if created, err := parseTimeString(createdRaw); err == nil {
		item.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		item.UpdatedAt = updated
	}
	if completedRaw.Valid {
		if completed, err := parseTimeString(completedRaw.String); err == nil {
			item.CompletedAt = &completed
		}
	}
	return item, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	return time.Parse(time.RFC3339Nano, value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}

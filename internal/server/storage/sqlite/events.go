package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opsdeck/syncline/internal/models"
	"github.com/opsdeck/syncline/internal/server/storage"
)

// ApplyEvent runs the acceptance decision for one pushed event. The version
// check, the canonical write, and the log append happen in one transaction;
// a replayed event id short-circuits as Duplicate before anything mutates.
func (s *Storage) ApplyEvent(ctx context.Context, event *models.SyncEvent) (*storage.ApplyResult, error) {
	if err := event.Validate(); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Idempotent replay: retried batches must not double-apply.
	var existingSeq int64
	err = tx.QueryRowContext(ctx,
		`SELECT seq FROM sync_events WHERE event_id = ?`, event.ID).Scan(&existingSeq)
	if err == nil {
		return &storage.ApplyResult{Outcome: storage.Duplicate, Seq: existingSeq}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to check event id: %w", err)
	}

	var (
		storedVersion int64
		storedData    sql.NullString
		storedDeleted bool
	)
	err = tx.QueryRowContext(ctx,
		`SELECT version, data, deleted FROM entities WHERE kind = ? AND id = ?`,
		string(event.Entity), event.EntityID).Scan(&storedVersion, &storedData, &storedDeleted)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to read canonical row: %w", err)
	}

	if models.Stale(event.Version, storedVersion) {
		result := &storage.ApplyResult{
			Outcome:       storage.Stale,
			StoredVersion: storedVersion,
			StoredDeleted: storedDeleted,
		}
		if storedData.Valid && !storedDeleted {
			result.StoredData = json.RawMessage(storedData.String)
		}
		return result, nil
	}

	deleted := 0
	if event.Operation == models.OpDelete {
		deleted = 1
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO entities (kind, id, version, data, deleted, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (kind, id) DO UPDATE SET
			version = excluded.version,
			data = excluded.data,
			deleted = excluded.deleted,
			updated_at = excluded.updated_at`,
		string(event.Entity), event.EntityID, event.Version,
		nullableJSON(event.Data), deleted, time.Now().Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert canonical row: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO sync_events (event_id, kind, entity_id, operation, data, version, client_id, ts, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, string(event.Entity), event.EntityID, string(event.Operation),
		nullableJSON(event.Data), event.Version, event.ClientID, event.Timestamp, time.Now().Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to append to event log: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read event sequence: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}

	return &storage.ApplyResult{Outcome: storage.Accepted, Seq: seq}, nil
}

// EventsSince returns durable events past sinceSeq, oldest first, excluding
// the pulling client's own echoes. The returned watermark covers every log
// entry up to the moment of the query, including excluded ones, so the
// client never re-scans its own events.
func (s *Storage) EventsSince(ctx context.Context, sinceSeq int64, excludeClient string) ([]*models.SyncEvent, int64, error) {
	maxSeq, err := s.CurrentSeq(ctx)
	if err != nil {
		return nil, 0, err
	}
	if maxSeq < sinceSeq {
		maxSeq = sinceSeq
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, kind, entity_id, operation, data, version, client_id, ts
		FROM sync_events
		WHERE seq > ? AND seq <= ? AND client_id != ?
		ORDER BY seq ASC`,
		sinceSeq, maxSeq, excludeClient,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []*models.SyncEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, 0, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate events: %w", err)
	}

	return events, maxSeq, nil
}

// CurrentSeq returns the newest assigned server sequence.
func (s *Storage) CurrentSeq(ctx context.Context) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM sync_events`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("failed to read current sequence: %w", err)
	}
	return seq, nil
}

// PruneEvents removes log entries created before the cutoff.
func (s *Storage) PruneEvents(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM sync_events WHERE created_at < ?`, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to prune events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned events: %w", err)
	}
	return int(n), nil
}

// GetEntity returns one canonical row, tombstones included.
func (s *Storage) GetEntity(ctx context.Context, kind models.EntityKind, id string) (version int64, data json.RawMessage, deleted bool, err error) {
	var (
		raw sql.NullString
		del int
	)
	err = s.db.QueryRowContext(ctx,
		`SELECT version, data, deleted FROM entities WHERE kind = ? AND id = ?`,
		string(kind), id).Scan(&version, &raw, &del)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil, false, storage.ErrEntityNotFound
	}
	if err != nil {
		return 0, nil, false, fmt.Errorf("failed to read entity: %w", err)
	}
	if raw.Valid {
		data = json.RawMessage(raw.String)
	}
	return version, data, del == 1, nil
}

func scanEvent(rows *sql.Rows) (*models.SyncEvent, error) {
	var (
		event models.SyncEvent
		kind  string
		op    string
		data  sql.NullString
	)
	if err := rows.Scan(&event.ID, &kind, &event.EntityID, &op, &data, &event.Version, &event.ClientID, &event.Timestamp); err != nil {
		return nil, fmt.Errorf("failed to scan event: %w", err)
	}
	event.Entity = models.EntityKind(kind)
	event.Operation = models.Operation(op)
	if data.Valid {
		event.Data = json.RawMessage(data.String)
	}
	return &event, nil
}

func nullableJSON(data json.RawMessage) interface{} {
	if len(data) == 0 {
		return nil
	}
	return string(data)
}

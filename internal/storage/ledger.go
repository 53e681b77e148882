package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/user/submodsync/internal/github"
	"github.com/user/submodsync/pkg/logger"
)

// cursorName identifies the singleton event_state row.
const cursorName = "github-state"

// EventSource pages through upstream events, newest first. A next page of
// 0 ends the stream.
type EventSource interface {
	ListEvents(ctx context.Context, page int) ([]github.Event, int, error)
}

// EventLedger is the append-only store of upstream events and owner of the
// global cursor.
type EventLedger struct {
	db *Database
}

// NewEventLedger creates a ledger backed by db.
func NewEventLedger(db *Database) *EventLedger {
	return &EventLedger{db: db}
}

// Cursor returns the current global cursor.
func (l *EventLedger) Cursor(ctx context.Context) (Cursor, error) {
	return loadCursor(ctx, l.db)
}

// DownloadEvents fetches events newer than the cursor and stores the
// relevant ones. The batch and the cursor update commit together; nothing
// is written when fetching fails.
func (l *EventLedger) DownloadEvents(ctx context.Context, src EventSource) (Cursor, error) {
	before, err := l.Cursor(ctx)
	if err != nil {
		return before, err
	}

	batch, reachedKnown, err := fetchNewEvents(ctx, src, before.LastID)
	if err != nil {
		return before, fmt.Errorf("download events after %d: %w", before.LastID, err)
	}
	if len(batch) == 0 {
		logger.Debug().Int64("last_id", before.LastID).Msg("No new events")
		return before, nil
	}

	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return before, fmt.Errorf("begin download transaction: %w", err)
	}
	defer tx.Rollback()

	cur, err := loadCursor(ctx, tx)
	if err != nil {
		return before, err
	}

	fresh := batch[:0]
	for _, ev := range batch {
		if ev.ID > cur.LastID {
			fresh = append(fresh, ev)
		}
	}
	if len(fresh) < len(batch) {
		// The frontier moved while we were fetching and now overlaps the batch.
		reachedKnown = true
	}
	if len(fresh) == 0 {
		return cur, nil
	}

	gap := cur.StartID == 0 || !reachedKnown
	var firstStored int64
	stored := 0
	for _, ev := range fresh {
		inserted, err := insertEvent(ctx, tx, ev)
		if err != nil {
			return before, err
		}
		if inserted {
			stored++
			if firstStored == 0 {
				firstStored = ev.ID
			}
		}
	}

	next := cur
	if gap {
		next.StartID = fresh[0].ID
		if firstStored != 0 {
			if _, err := tx.ExecContext(ctx,
				`UPDATE events SET sequence_start = 1 WHERE source_id = ?`, firstStored); err != nil {
				return before, fmt.Errorf("flag sequence start: %w", err)
			}
		}
	}
	next.LastID = fresh[len(fresh)-1].ID

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO event_state (name, start_id, last_id) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET start_id = excluded.start_id, last_id = excluded.last_id
	`, cursorName, next.StartID, next.LastID); err != nil {
		return before, fmt.Errorf("update event cursor: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return before, fmt.Errorf("commit downloaded events: %w", err)
	}

	ev := logger.Info().
		Int("fetched", len(fresh)).
		Int("stored", stored).
		Int64("start_id", next.StartID).
		Int64("last_id", next.LastID)
	if gap {
		ev = ev.Bool("gap", true)
	}
	ev.Msg("Downloaded events")

	return next, nil
}

// Events returns events with after < source_id <= upTo in source order.
func (l *EventLedger) Events(ctx context.Context, after, upTo int64, filter EventFilter) ([]Event, error) {
	query := `SELECT * FROM events WHERE source_id > ? AND source_id <= ?`
	args := []interface{}{after, upTo}
	if filter.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, filter.Kind)
	}
	if filter.Branch != "" {
		query += ` AND branch = ?`
		args = append(args, filter.Branch)
	}
	query += ` ORDER BY source_id`

	var events []Event
	if err := l.db.SelectContext(ctx, &events, query, args...); err != nil {
		return nil, fmt.Errorf("read events (%d, %d]: %w", after, upTo, err)
	}
	return events, nil
}

// Recent returns up to limit of the newest stored events, newest first.
func (l *EventLedger) Recent(ctx context.Context, limit int) ([]Event, error) {
	var events []Event
	err := l.db.SelectContext(ctx, &events,
		`SELECT * FROM events ORDER BY source_id DESC LIMIT ?`, limit)
	return events, err
}

func loadCursor(ctx context.Context, q sqlx.QueryerContext) (Cursor, error) {
	var c Cursor
	err := sqlx.GetContext(ctx, q, &c,
		`SELECT start_id, last_id FROM event_state WHERE name = ?`, cursorName)
	if errors.Is(err, sql.ErrNoRows) {
		return Cursor{}, nil
	}
	if err != nil {
		return Cursor{}, fmt.Errorf("read event cursor: %w", err)
	}
	return c, nil
}

// fetchNewEvents pages through src until an id <= lastID appears. It
// returns the new events oldest first and whether the known frontier was
// reached, which proves the batch is contiguous with what came before.
func fetchNewEvents(ctx context.Context, src EventSource, lastID int64) ([]github.Event, bool, error) {
	var batch []github.Event
	seen := make(map[int64]bool)
	reachedKnown := false

	page := 1
	for page != 0 && !reachedKnown {
		events, next, err := src.ListEvents(ctx, page)
		if err != nil {
			return nil, false, err
		}
		for _, ev := range events {
			if ev.ID <= lastID {
				reachedKnown = true
				break
			}
			if !seen[ev.ID] {
				seen[ev.ID] = true
				batch = append(batch, ev)
			}
		}
		page = next
	}

	sort.Slice(batch, func(i, j int) bool { return batch[i].ID < batch[j].ID })
	return batch, reachedKnown, nil
}

func insertEvent(ctx context.Context, tx *sqlx.Tx, ev github.Event) (bool, error) {
	if ev.Ignored() {
		return false, nil
	}

	row := Event{
		SourceID:  ev.ID,
		Kind:      EventKind(ev.Type),
		Repo:      ev.Repo,
		Payload:   "{}",
		CreatedAt: ev.CreatedAt,
	}
	if len(ev.Raw) > 0 {
		row.Payload = string(ev.Raw)
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	if branch, ok := ev.Branch(); ok {
		row.Branch = sql.NullString{String: branch, Valid: true}
	}
	if p, ok := ev.Payload.(github.PushPayload); ok {
		row.BeforeHash = p.Before
		row.HeadHash = p.Head
	}

	res, err := tx.NamedExecContext(ctx, `
		INSERT OR IGNORE INTO events
			(source_id, kind, repo, branch, before_hash, head_hash, payload, created_at)
		VALUES
			(:source_id, :kind, :repo, :branch, :before_hash, :head_hash, :payload, :created_at)
	`, row)
	if err != nil {
		return false, fmt.Errorf("insert event %d: %w", ev.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

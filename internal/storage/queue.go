package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/user/submodsync/pkg/logger"
)

// ErrQueueKind is returned when a queue is reopened with a different kind.
var ErrQueueKind = errors.New("queue kind mismatch")

// Queue is a named consumer of the ledger with a persisted read position.
// Its view of the ledger is the cursor captured when it was opened or last
// refreshed with DownloadMoreEvents.
type Queue struct {
	ledger *EventLedger
	state  QueueState
	cursor Cursor
}

// OpenQueue loads the queue name, creating it at position 0 when new.
func (l *EventLedger) OpenQueue(ctx context.Context, name string, kind EventKind) (*Queue, error) {
	cursor, err := l.Cursor(ctx)
	if err != nil {
		return nil, err
	}

	if _, err := l.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO queues (name, kind, position) VALUES (?, ?, 0)`, name, kind); err != nil {
		return nil, fmt.Errorf("create queue %s: %w", name, err)
	}

	var state QueueState
	if err := l.db.GetContext(ctx, &state, `SELECT * FROM queues WHERE name = ?`, name); err != nil {
		return nil, fmt.Errorf("load queue %s: %w", name, err)
	}
	if state.Kind != kind {
		return nil, fmt.Errorf("%w: queue %s holds %q, opened as %q", ErrQueueKind, name, state.Kind, kind)
	}

	return &Queue{ledger: l, state: state, cursor: cursor}, nil
}

// ListQueues returns every queue ordered by name.
func (l *EventLedger) ListQueues(ctx context.Context) ([]QueueState, error) {
	var queues []QueueState
	err := l.db.SelectContext(ctx, &queues, `SELECT * FROM queues ORDER BY name`)
	return queues, err
}

func (q *Queue) Name() string { return q.state.Name }

func (q *Queue) Kind() EventKind { return q.state.Kind }

func (q *Queue) Position() int64 { return q.state.Position }

func (q *Queue) Cursor() Cursor { return q.cursor }

// End is the newest event visible to the queue.
func (q *Queue) End() int64 { return q.cursor.LastID }

// ContinuedFromLastRun reports whether the queue has seen every event since
// the start of the current contiguous run.
func (q *Queue) ContinuedFromLastRun() bool {
	return q.cursor.ContinuedFrom(q.state.Position)
}

// Events returns unread events of the queue's kind up to End, optionally
// restricted to branch.
func (q *Queue) Events(ctx context.Context, branch string) ([]Event, error) {
	return q.EventsBetween(ctx, q.state.Position, q.cursor.LastID, branch)
}

// EventsBetween returns events of the queue's kind in (after, upTo].
func (q *Queue) EventsBetween(ctx context.Context, after, upTo int64, branch string) ([]Event, error) {
	if upTo > q.cursor.LastID {
		return nil, fmt.Errorf("queue %s: read up to %d beyond end %d", q.state.Name, upTo, q.cursor.LastID)
	}
	if after >= upTo {
		return nil, nil
	}
	return q.ledger.Events(ctx, after, upTo, EventFilter{Kind: q.state.Kind, Branch: branch})
}

// DownloadMoreEvents downloads new events and moves End to the new frontier.
func (q *Queue) DownloadMoreEvents(ctx context.Context, src EventSource) error {
	cursor, err := q.ledger.DownloadEvents(ctx, src)
	if err != nil {
		return err
	}
	q.cursor = cursor
	return nil
}

// MarkReadUpTo advances the position to id. Positions never move backwards.
func (q *Queue) MarkReadUpTo(ctx context.Context, id int64) error {
	if id <= q.state.Position {
		return nil
	}
	return q.setPosition(ctx, id)
}

// MarkAllRead advances the position past everything the queue has seen.
func (q *Queue) MarkAllRead(ctx context.Context) error {
	pos := q.state.Position
	if q.cursor.LastID > pos {
		pos = q.cursor.LastID
	}
	if q.cursor.StartID > pos {
		pos = q.cursor.StartID
	}
	if pos == q.state.Position {
		return nil
	}
	return q.setPosition(ctx, pos)
}

// Reset moves the position back to the start of the contiguous run so the
// next run replays it. It is the one operation allowed to move backwards.
func (q *Queue) Reset(ctx context.Context) error {
	logger.Warn().
		Str("queue", q.state.Name).
		Int64("from", q.state.Position).
		Int64("to", q.cursor.StartID).
		Msg("Resetting queue position")
	return q.setPosition(ctx, q.cursor.StartID)
}

func (q *Queue) setPosition(ctx context.Context, pos int64) error {
	_, err := q.ledger.db.ExecContext(ctx,
		`UPDATE queues SET position = ?, updated_at = CURRENT_TIMESTAMP WHERE name = ?`,
		pos, q.state.Name)
	if err != nil {
		return fmt.Errorf("update queue %s to %d: %w", q.state.Name, pos, err)
	}
	q.state.Position = pos
	return nil
}

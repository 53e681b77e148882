// Package storage provides the event ledger, consumer queues and mirror
// flags on top of SQLite.
package storage

import (
	"database/sql"
	"time"
)

// EventKind is the upstream type of a stored event.
type EventKind string

const (
	EventKindPush   EventKind = "PushEvent"
	EventKindCreate EventKind = "CreateEvent"
)

// Event is an immutable ledger entry.
type Event struct {
	ID            int64          `db:"id"`
	SourceID      int64          `db:"source_id"`
	Kind          EventKind      `db:"kind"`
	Repo          string         `db:"repo"`
	Branch        sql.NullString `db:"branch"` // NULL for tag creation
	BeforeHash    string         `db:"before_hash"`
	HeadHash      string         `db:"head_hash"`
	Payload       string         `db:"payload"`
	SequenceStart bool           `db:"sequence_start"`
	CreatedAt     time.Time      `db:"created_at"`
	ReceivedAt    time.Time      `db:"received_at"`
}

// Cursor describes the downloaded part of the upstream stream. StartID is
// the first id of the latest run known to be contiguous; LastID the newest
// id downloaded. Zero means never downloaded.
type Cursor struct {
	StartID int64 `db:"start_id"`
	LastID  int64 `db:"last_id"`
}

// ContinuedFrom reports whether a consumer at position has seen every event
// since the start of the contiguous run, so incremental replay is safe.
func (c Cursor) ContinuedFrom(position int64) bool {
	return c.StartID != 0 && position >= c.StartID
}

// QueueState is the persisted read position of one consumer.
type QueueState struct {
	ID        int64     `db:"id"`
	Name      string    `db:"name"`
	Kind      EventKind `db:"kind"`
	Position  int64     `db:"position"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Mirror records whether a local mirror of an upstream repo needs a fetch.
type Mirror struct {
	ID        int64     `db:"id"`
	Repo      string    `db:"repo"`
	URL       string    `db:"url"`
	Dirty     bool      `db:"dirty"`
	UpdatedAt time.Time `db:"updated_at"`
}

// EventFilter narrows an event read. Zero values match everything.
type EventFilter struct {
	Kind   EventKind
	Branch string
}

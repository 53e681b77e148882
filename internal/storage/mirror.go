package storage

import (
	"context"
	"fmt"
)

// MirrorStore records which local repository mirrors need a refetch.
type MirrorStore struct {
	db *Database
}

// NewMirrorStore creates a new mirror store.
func NewMirrorStore(db *Database) *MirrorStore {
	return &MirrorStore{db: db}
}

// MarkDirty flags repo as needing a fetch, creating the record when new.
func (s *MirrorStore) MarkDirty(ctx context.Context, repo, url string) error {
	query := `
		INSERT INTO mirrors (repo, url, dirty)
		VALUES (?, ?, 1)
		ON CONFLICT(repo) DO UPDATE SET
			url = excluded.url,
			dirty = 1,
			updated_at = CURRENT_TIMESTAMP
	`
	if _, err := s.db.ExecContext(ctx, query, repo, url); err != nil {
		return fmt.Errorf("mark mirror %s dirty: %w", repo, err)
	}
	return nil
}

// List returns every mirror record ordered by repo.
func (s *MirrorStore) List(ctx context.Context, dirtyOnly bool) ([]Mirror, error) {
	query := `SELECT * FROM mirrors`
	if dirtyOnly {
		query += ` WHERE dirty = 1`
	}
	query += ` ORDER BY repo`

	var mirrors []Mirror
	if err := s.db.SelectContext(ctx, &mirrors, query); err != nil {
		return nil, err
	}
	return mirrors, nil
}

// Package bookmark saves named selections so they can be restored later or
// shared between sessions. Bookmarks refer to records by stable id only.
package bookmark

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure go sqlite driver

	"annoview/internal/models"
	"annoview/pkg/selection"
)

// ErrNotFound is returned for unknown bookmark ids.
var ErrNotFound = errors.New("bookmark not found")

// Bookmark is a named selection snapshot.
type Bookmark struct {
	ID        string            `yaml:"id"`
	Name      string            `yaml:"name"`
	Selected  []models.RecordID `yaml:"selected"`
	Focused   models.RecordID   `yaml:"focused,omitempty"`
	CreatedAt time.Time         `yaml:"createdAt"`
}

// FromState captures the current selection under name.
func FromState(name string, s *selection.State) *Bookmark {
	snap := s.Snapshot()
	return &Bookmark{
		Name:     name,
		Selected: snap.Selected,
		Focused:  snap.Focused,
	}
}

// Snapshot returns the selection held by the bookmark.
func (b *Bookmark) Snapshot() selection.Snapshot {
	return selection.Snapshot{
		Selected: append([]models.RecordID(nil), b.Selected...),
		Focused:  b.Focused,
	}
}

// Apply restores the bookmarked selection into s.
func (b *Bookmark) Apply(s *selection.State) {
	s.Restore(b.Snapshot())
}

// Store persists bookmarks in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens or creates the bookmark database at path.
func Open(path string) (*Store, error) {
	if path == "" {
		path = "annoview.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS bookmarks (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			focused TEXT,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS bookmark_records (
			bookmark_id TEXT NOT NULL,
			record_id TEXT NOT NULL,
			PRIMARY KEY (bookmark_id, record_id)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("create bookmark tables: %w", err)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Insert saves b. If b.ID is empty a new UUID is generated, and a zero
// CreatedAt is set to now.
func (s *Store) Insert(ctx context.Context, b *Bookmark) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO bookmarks (id, name, focused, created_at) VALUES (?, ?, ?, ?)`,
		b.ID, b.Name, nullString(string(b.Focused)), b.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert bookmark: %w", err)
	}
	for _, id := range b.Selected {
		_, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO bookmark_records (bookmark_id, record_id) VALUES (?, ?)`,
			b.ID, string(id),
		)
		if err != nil {
			return fmt.Errorf("insert bookmark record: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Get loads the bookmark with the given id.
func (s *Store) Get(ctx context.Context, id string) (*Bookmark, error) {
	b := &Bookmark{}
	var focused sql.NullString
	var created int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, focused, created_at FROM bookmarks WHERE id = ?`, id,
	).Scan(&b.ID, &b.Name, &focused, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get bookmark: %w", err)
	}
	if focused.Valid {
		b.Focused = models.RecordID(focused.String)
	}
	b.CreatedAt = time.Unix(0, created).UTC()

	if b.Selected, err = s.records(ctx, b.ID); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *Store) records(ctx context.Context, bookmarkID string) ([]models.RecordID, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT record_id FROM bookmark_records WHERE bookmark_id = ? ORDER BY record_id`, bookmarkID)
	if err != nil {
		return nil, fmt.Errorf("list bookmark records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []models.RecordID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan bookmark record: %w", err)
		}
		ids = append(ids, models.RecordID(id))
	}
	return ids, rows.Err()
}

// List returns all bookmarks, oldest first.
func (s *Store) List(ctx context.Context) ([]*Bookmark, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM bookmarks ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list bookmarks: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan bookmark: %w", err)
		}
		ids = append(ids, id)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list bookmarks: %w", err)
	}

	out := make([]*Bookmark, 0, len(ids))
	for _, id := range ids {
		b, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// Delete removes a bookmark and its records.
func (s *Store) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM bookmarks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete bookmark: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM bookmark_records WHERE bookmark_id = ?`, id); err != nil {
		return fmt.Errorf("delete bookmark records: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

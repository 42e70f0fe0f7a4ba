// Package store keeps event streams in a SQLite database so that a
// document read once can be written to other formats later without
// parsing it again.
//
// The database uses the pure Go modernc.org/sqlite driver. Each event is
// stored as its JSON envelope, in stream order, next to the BLAKE3 digest
// of the whole stream.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/FocuswithJustin/phyloconv/core/errors"
	"github.com/FocuswithJustin/phyloconv/core/event"
	"github.com/FocuswithJustin/phyloconv/internal/logging"
)

// DriverName is the database/sql driver used by Open.
const DriverName = "sqlite"

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id      TEXT PRIMARY KEY,
	name    TEXT NOT NULL UNIQUE,
	format  TEXT NOT NULL,
	digest  TEXT NOT NULL,
	events  INTEGER NOT NULL,
	created TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS events (
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	seq         INTEGER NOT NULL,
	data        BLOB NOT NULL,
	PRIMARY KEY (document_id, seq)
);
`

// MaxNameLength is the longest accepted document name in bytes.
const MaxNameLength = 255

var (
	// ErrNotFound is returned for a document name that is not stored.
	ErrNotFound = errors.New("document not found")
	// ErrInvalidName is returned by Save for an unusable document name.
	ErrInvalidName = errors.New("invalid document name")
)

// ValidateName checks that name can be used as a document name: non-empty,
// at most MaxNameLength bytes, free of control characters and not starting
// with a hyphen.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidName)
	}
	if len(name) > MaxNameLength {
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidName, MaxNameLength)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: control character not allowed", ErrInvalidName)
		}
	}
	// Names starting with a hyphen cannot be given on the command line.
	if strings.HasPrefix(name, "-") {
		return fmt.Errorf("%w: cannot start with a hyphen", ErrInvalidName)
	}
	return nil
}

// Entry describes a stored document.
type Entry struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Format  string    `json:"format"`
	Digest  string    `json:"digest"`
	Events  int       `json:"events"`
	Created time.Time `json:"created"`
}

// Store is an event store backed by one SQLite database.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens or creates the database at path. ":memory:" opens a private
// in-memory database.
func Open(path string) (*Store, error) {
	db, err := sql.Open(DriverName, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	// An in-memory database exists once per connection.
	db.SetMaxOpenConns(1)
	for _, stmt := range []string{"PRAGMA foreign_keys = ON", schema} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize store: %w", err)
		}
	}
	return &Store{db: db, logger: logging.GetLogger()}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save reads r to the end and stores its events under name, replacing a
// document of the same name. sourceFormat records where the events came
// from.
func (s *Store) Save(ctx context.Context, name, sourceFormat string, r event.Reader) (Entry, error) {
	if err := ValidateName(name); err != nil {
		return Entry{}, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Entry{}, err
	}
	defer tx.Rollback()

	if _, err := remove(ctx, tx, name); err != nil {
		return Entry{}, fmt.Errorf("failed to replace %q: %w", name, err)
	}
	entry := Entry{ID: uuid.NewString(), Name: name, Format: sourceFormat, Created: time.Now().UTC()}
	// The document row goes first so that the events can reference it;
	// digest and count are filled in once the stream is read.
	_, err = tx.ExecContext(ctx,
		`INSERT INTO documents (id, name, format, digest, events, created) VALUES (?, ?, ?, '', 0, ?)`,
		entry.ID, entry.Name, entry.Format, entry.Created.Format(time.RFC3339Nano))
	if err != nil {
		return Entry{}, fmt.Errorf("failed to insert %q: %w", name, err)
	}

	insert, err := tx.PrepareContext(ctx, `INSERT INTO events (document_id, seq, data) VALUES (?, ?, ?)`)
	if err != nil {
		return Entry{}, err
	}
	defer insert.Close()

	d := event.NewDigester()
	for {
		e, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Entry{}, err
		}
		data, err := d.Add(e)
		if err != nil {
			return Entry{}, err
		}
		if _, err := insert.ExecContext(ctx, entry.ID, entry.Events, data); err != nil {
			return Entry{}, fmt.Errorf("failed to store event %d: %w", entry.Events, err)
		}
		entry.Events++
	}
	entry.Digest = d.Sum()

	_, err = tx.ExecContext(ctx, `UPDATE documents SET digest = ?, events = ? WHERE id = ?`, entry.Digest, entry.Events, entry.ID)
	if err != nil {
		return Entry{}, err
	}
	if err := tx.Commit(); err != nil {
		return Entry{}, err
	}
	s.logger.Info("document stored", "name", name, "events", entry.Events, "digest", entry.Digest)
	return entry, nil
}

// Get returns the entry of the document stored under name.
func (s *Store) Get(ctx context.Context, name string) (Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, format, digest, events, created FROM documents WHERE name = ?`, name)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return entry, err
}

// List returns every stored document, ordered by name.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, format, digest, events, created FROM documents ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Delete removes the document stored under name.
func (s *Store) Delete(ctx context.Context, name string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	n, err := remove(ctx, tx, name)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return tx.Commit()
}

// remove deletes a document and its events and reports how many documents
// were deleted.
func remove(ctx context.Context, tx *sql.Tx, name string) (int64, error) {
	_, err := tx.ExecContext(ctx,
		`DELETE FROM events WHERE document_id IN (SELECT id FROM documents WHERE name = ?)`, name)
	if err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE name = ?`, name)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (Entry, error) {
	var entry Entry
	var created string
	if err := row.Scan(&entry.ID, &entry.Name, &entry.Format, &entry.Digest, &entry.Events, &created); err != nil {
		return Entry{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return Entry{}, fmt.Errorf("invalid creation time %q: %w", created, err)
	}
	entry.Created = t
	return entry, nil
}

// Load returns a reader over the events stored under name. Events are
// decoded as they are read; the reader releases its database rows at the
// end of the stream or on Close.
func (s *Store) Load(ctx context.Context, name string) (*Reader, error) {
	entry, err := s.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM events WHERE document_id = ? ORDER BY seq`, entry.ID)
	if err != nil {
		return nil, err
	}
	return &Reader{Entry: entry, rows: rows}, nil
}

// Reader streams the events of a stored document.
type Reader struct {
	Entry  Entry
	rows   *sql.Rows
	next   event.Event
	err    error
	closed bool
}

func (r *Reader) fill() {
	if r.next != nil || r.err != nil {
		return
	}
	if r.closed || !r.rows.Next() {
		if !r.closed {
			r.err = r.rows.Err()
			r.Close()
		}
		if r.err == nil {
			r.err = io.EOF
		}
		return
	}
	var data []byte
	if err := r.rows.Scan(&data); err != nil {
		r.err = err
		r.Close()
		return
	}
	r.next, r.err = event.Unmarshal(data)
	if r.err != nil {
		r.Close()
	}
}

// Peek returns the next event without consuming it.
func (r *Reader) Peek() (event.Event, error) {
	r.fill()
	if r.next != nil {
		return r.next, nil
	}
	return nil, r.err
}

// Next returns the next event, or io.EOF after the last one.
func (r *Reader) Next() (event.Event, error) {
	e, err := r.Peek()
	r.next = nil
	return e, err
}

// Close releases the database rows.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.rows.Close()
}

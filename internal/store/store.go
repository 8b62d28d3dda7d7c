package store

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pavelanni/lecturetutor/internal/model"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a draft does not exist.
var ErrNotFound = errors.New("not found")

// MetaSource is the metadata key holding the last imported topic bank.
const MetaSource = "bank_source"

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Every connection to ":memory:" is a separate database.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS drafts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		topic_title TEXT NOT NULL,
		position INTEGER NOT NULL,
		type TEXT NOT NULL,
		required INTEGER NOT NULL DEFAULT 0,
		question TEXT NOT NULL,
		edited INTEGER NOT NULL DEFAULT 0,
		updated_at DATETIME NOT NULL,
		UNIQUE (topic_title, position)
	);

	CREATE TABLE IF NOT EXISTS imported_files (
		path TEXT PRIMARY KEY,
		hash TEXT NOT NULL,
		imported_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS bank_metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// ImportTopics copies the questions of a topic bank into drafts. source names
// the bank and data is its raw content; an unchanged bank is skipped. Drafts
// that were edited keep their edits. It reports how many drafts were written.
func (s *Store) ImportTopics(source string, data []byte, topics []model.Topic) (int, error) {
	hash := sha256sum(data)
	stored, err := s.GetImportedFileHash(source)
	if err != nil {
		return 0, fmt.Errorf("check import status for %s: %w", source, err)
	}
	if stored == hash {
		slog.Info("topic bank unchanged, skipping import", "source", source)
		return 0, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	now := time.Now()
	written := 0
	for _, t := range topics {
		for i, q := range t.Questions {
			body, err := json.Marshal(q)
			if err != nil {
				return 0, fmt.Errorf("encode question %d of %q: %w", i, t.Title, err)
			}
			res, err := tx.Exec(
				`INSERT INTO drafts (topic_title, position, type, required, question, edited, updated_at)
				 VALUES (?, ?, ?, ?, ?, 0, ?)
				 ON CONFLICT(topic_title, position) DO UPDATE
				 SET type = excluded.type, required = excluded.required,
				     question = excluded.question, updated_at = excluded.updated_at
				 WHERE drafts.edited = 0`,
				t.Title, i, q.Type, q.Required, string(body), now,
			)
			if err != nil {
				return 0, fmt.Errorf("insert draft %d of %q: %w", i, t.Title, err)
			}
			if n, _ := res.RowsAffected(); n > 0 {
				written++
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}

	if err := s.SetImportedFileHash(source, hash); err != nil {
		return written, fmt.Errorf("record import for %s: %w", source, err)
	}
	if err := s.SetMetadata(MetaSource, source); err != nil {
		return written, fmt.Errorf("record bank source: %w", err)
	}
	slog.Info("imported topic bank", "source", source, "drafts", written)
	return written, nil
}

const draftColumns = `id, topic_title, position, question, edited, updated_at`

func scanDraft(row interface{ Scan(...any) error }) (model.Draft, error) {
	var d model.Draft
	var body string
	if err := row.Scan(&d.ID, &d.TopicTitle, &d.Position, &body, &d.Edited, &d.UpdatedAt); err != nil {
		return d, err
	}
	if err := json.Unmarshal([]byte(body), &d.Question); err != nil {
		return d, fmt.Errorf("decode draft %d: %w", d.ID, err)
	}
	return d, nil
}

// ListDrafts returns drafts matching the filter in import order.
func (s *Store) ListDrafts(f model.DraftFilter) ([]model.Draft, error) {
	query := `SELECT ` + draftColumns + ` FROM drafts WHERE 1=1`
	var args []any
	if f.TopicTitle != "" {
		query += ` AND topic_title = ?`
		args = append(args, f.TopicTitle)
	}
	if f.Type != "" {
		query += ` AND type = ?`
		args = append(args, f.Type)
	}
	if f.Required != nil {
		query += ` AND required = ?`
		args = append(args, *f.Required)
	}
	query += ` ORDER BY id`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var drafts []model.Draft
	for rows.Next() {
		d, err := scanDraft(rows)
		if err != nil {
			return nil, err
		}
		drafts = append(drafts, d)
	}
	return drafts, rows.Err()
}

// GetDraft returns a draft by ID.
func (s *Store) GetDraft(id int64) (model.Draft, error) {
	d, err := scanDraft(s.db.QueryRow(`SELECT `+draftColumns+` FROM drafts WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return d, fmt.Errorf("draft %d: %w", id, ErrNotFound)
	}
	return d, err
}

// UpdateDraft replaces a draft's question and marks it edited.
func (s *Store) UpdateDraft(d model.Draft) error {
	body, err := json.Marshal(d.Question)
	if err != nil {
		return fmt.Errorf("encode draft %d: %w", d.ID, err)
	}
	res, err := s.db.Exec(
		`UPDATE drafts SET type = ?, required = ?, question = ?, edited = 1, updated_at = ? WHERE id = ?`,
		d.Question.Type, d.Question.Required, string(body), time.Now(), d.ID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("draft %d: %w", d.ID, ErrNotFound)
	}
	slog.Info("draft updated", "id", d.ID, "topic", d.TopicTitle)
	return nil
}

// ListDistinctTopics returns the topic titles of all drafts in import order.
func (s *Store) ListDistinctTopics() ([]string, error) {
	return s.distinct(`SELECT topic_title FROM drafts GROUP BY topic_title ORDER BY MIN(id)`)
}

// ListDistinctTypes returns the question types present, sorted.
func (s *Store) ListDistinctTypes() ([]string, error) {
	return s.distinct(`SELECT DISTINCT type FROM drafts ORDER BY type`)
}

func (s *Store) distinct(query string) ([]string, error) {
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// DraftCount returns the number of drafts.
func (s *Store) DraftCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM drafts`).Scan(&count)
	return count, err
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	ixerrors "github.com/Aman-CERP/indexq/internal/errors"
	"github.com/Aman-CERP/indexq/internal/job"
)

// ErrClosed is returned by engine and state store methods after Close.
var ErrClosed = errors.New("store is closed")

// SQLiteEngine implements Engine on SQLite FTS5.
type SQLiteEngine struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

var _ Engine = (*SQLiteEngine)(nil)

// validateSQLiteIntegrity checks an existing database before it is opened.
// A missing file is valid; it will be created.
func validateSQLiteIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}

	var count int
	err = db.QueryRow(`SELECT COUNT(*) FROM sqlite_master
                       WHERE type='table' AND name IN ('fts_docs', 'docs')`).Scan(&count)
	if err != nil {
		return fmt.Errorf("cannot query schema: %w", err)
	}
	if count != 2 {
		return fmt.Errorf("index tables missing")
	}
	return nil
}

// NewSQLiteEngine opens or creates the index database at path. An empty path
// creates an in-memory index.
//
// A database that fails the integrity check is removed and recreated empty;
// the caller is expected to rebuild.
func NewSQLiteEngine(path string) (*SQLiteEngine, error) {
	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, ixerrors.New(ixerrors.ErrCodeFilePermission, fmt.Sprintf("failed to create directory %s", dir), err)
		}

		if validErr := validateSQLiteIntegrity(path); validErr != nil {
			slog.Warn("sqlite_index_corrupted",
				slog.String("path", path),
				slog.String("error", validErr.Error()))

			if removeErr := os.Remove(path); removeErr != nil && !os.IsNotExist(removeErr) {
				return nil, ixerrors.New(ixerrors.ErrCodeCorruptIndex,
					fmt.Sprintf("index corrupted at %s and cannot be removed (original error: %v)", path, validErr), removeErr)
			}
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")

			slog.Info("sqlite_index_cleared",
				slog.String("path", path),
				slog.String("reason", "corruption detected, please reindex"))
		}

		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, ixerrors.EngineError("failed to open database", err)
	}

	// Single writer; also keeps an in-memory database alive on one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// modernc.org/sqlite ignores most DSN parameters, so set them explicitly.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -32768",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, ixerrors.EngineError("failed to set pragma", err)
		}
	}

	e := &SQLiteEngine{db: db, path: path}
	if err := e.initSchema(); err != nil {
		_ = db.Close()
		return nil, ixerrors.EngineError("failed to initialize schema", err)
	}
	return e, nil
}

// initSchema creates the FTS5 table and the document table that carries the
// ID parts used to select scopes.
func (s *SQLiteEngine) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	-- title and body hold pre-tokenized text; doc_id is stored only
	CREATE VIRTUAL TABLE IF NOT EXISTS fts_docs USING fts5(
		doc_id UNINDEXED,
		title,
		body,
		tokenize='unicode61'
	);

	CREATE TABLE IF NOT EXISTS docs (
		doc_id     TEXT PRIMARY KEY,
		wiki       TEXT NOT NULL,
		space      TEXT NOT NULL DEFAULT '',
		doc        TEXT NOT NULL DEFAULT '',
		lang       TEXT NOT NULL DEFAULT '',
		attachment TEXT NOT NULL DEFAULT '',
		title      TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS docs_scope ON docs(wiki, space, doc);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Index adds or replaces documents in one transaction.
func (s *SQLiteEngine) Index(ctx context.Context, docs ...*Document) error {
	if len(docs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ixerrors.EngineError("failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	// FTS5 virtual tables don't support REPLACE, so delete first.
	deleteStmt, err := tx.PrepareContext(ctx, `DELETE FROM fts_docs WHERE doc_id = ?`)
	if err != nil {
		return ixerrors.EngineError("failed to prepare delete statement", err)
	}
	defer deleteStmt.Close()

	insertStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO fts_docs(doc_id, title, body) VALUES (?, ?, ?)`)
	if err != nil {
		return ixerrors.EngineError("failed to prepare FTS statement", err)
	}
	defer insertStmt.Close()

	docStmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO docs(doc_id, wiki, space, doc, lang, attachment, title)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return ixerrors.EngineError("failed to prepare document statement", err)
	}
	defer docStmt.Close()

	for _, doc := range docs {
		ref := doc.ID.String()
		if _, err := deleteStmt.ExecContext(ctx, ref); err != nil {
			return ixerrors.EngineError(fmt.Sprintf("failed to delete existing document %s", ref), err)
		}
		title := strings.Join(Terms(doc.Title), " ")
		body := strings.Join(Terms(doc.Body), " ")
		if _, err := insertStmt.ExecContext(ctx, ref, title, body); err != nil {
			return ixerrors.EngineError(fmt.Sprintf("failed to index document %s", ref), err)
		}
		id := doc.ID
		if _, err := docStmt.ExecContext(ctx, ref, id.Wiki, id.Space, id.Doc, id.Lang, id.Attachment, doc.Title); err != nil {
			return ixerrors.EngineError(fmt.Sprintf("failed to track document %s", ref), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return ixerrors.EngineError("failed to commit", err)
	}
	return nil
}

// Delete removes one document.
func (s *SQLiteEngine) Delete(ctx context.Context, id job.ID) error {
	return s.deleteWhere(ctx, "doc_id = ?", []any{id.String()})
}

// DeleteScope removes every document under scope.
func (s *SQLiteEngine) DeleteScope(ctx context.Context, scope job.ID) error {
	fields := scopeFields(scope)
	clauses := make([]string, len(fields))
	args := make([]any, len(fields))
	for i, f := range fields {
		clauses[i] = f[0] + " = ?"
		args[i] = f[1]
	}
	return s.deleteWhere(ctx, strings.Join(clauses, " AND "), args)
}

// deleteWhere deletes the docs rows matching where, and their FTS rows.
// where only ever holds column names from scopeFields.
func (s *SQLiteEngine) deleteWhere(ctx context.Context, where string, args []any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ixerrors.EngineError("failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	ftsQuery := fmt.Sprintf("DELETE FROM fts_docs WHERE doc_id IN (SELECT doc_id FROM docs WHERE %s)", where)
	if _, err := tx.ExecContext(ctx, ftsQuery, args...); err != nil {
		return ixerrors.EngineError("failed to delete from FTS", err)
	}
	docsQuery := fmt.Sprintf("DELETE FROM docs WHERE %s", where)
	if _, err := tx.ExecContext(ctx, docsQuery, args...); err != nil {
		return ixerrors.EngineError("failed to delete from docs", err)
	}

	if err := tx.Commit(); err != nil {
		return ixerrors.EngineError("failed to commit", err)
	}
	return nil
}

// Search ranks matches with bm25, weighting title matches twice as heavily
// as body matches. All query terms must match.
func (s *SQLiteEngine) Search(ctx context.Context, query string, limit int) ([]*Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	terms := Terms(query)
	if len(terms) == 0 {
		return []*Hit{}, nil
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	// Terms contain only word characters, so quoting each one yields a valid
	// FTS5 phrase and space separation ANDs them.
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + t + `"`
	}

	// bm25() is negative, lower is better.
	rows, err := s.db.QueryContext(ctx, `
		SELECT fts_docs.doc_id, docs.title, bm25(fts_docs, 0.0, 2.0, 1.0) AS score
		FROM fts_docs
		JOIN docs ON docs.doc_id = fts_docs.doc_id
		WHERE fts_docs MATCH ?
		ORDER BY score
		LIMIT ?
	`, strings.Join(quoted, " "), limit)
	if err != nil {
		if strings.Contains(err.Error(), "fts5:") || strings.Contains(err.Error(), "syntax error") {
			return []*Hit{}, nil
		}
		return nil, ixerrors.New(ixerrors.ErrCodeSearchFailed, "search failed", err)
	}
	defer rows.Close()

	hits := []*Hit{}
	for rows.Next() {
		var ref, title string
		var score float64
		if err := rows.Scan(&ref, &title, &score); err != nil {
			return nil, ixerrors.New(ixerrors.ErrCodeSearchFailed, "failed to scan result", err)
		}
		id, err := job.ParseID(ref)
		if err != nil {
			slog.Warn("sqlite_index_bad_ref", slog.String("ref", ref), slog.String("error", err.Error()))
			continue
		}
		hits = append(hits, &Hit{ID: id, Ref: ref, Title: title, Score: -score})
	}
	return hits, rows.Err()
}

// Count returns the number of indexed documents.
func (s *SQLiteEngine) Count() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, ErrClosed
	}
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM docs`).Scan(&count); err != nil {
		return 0, ixerrors.EngineError("failed to count documents", err)
	}
	return count, nil
}

// Backend returns BackendSQLite.
func (s *SQLiteEngine) Backend() Backend {
	return BackendSQLite
}

// Close checkpoints the WAL and closes the database. It is idempotent.
func (s *SQLiteEngine) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.path != "" {
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	}
	return s.db.Close()
}

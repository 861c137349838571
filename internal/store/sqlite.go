package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var _ MediaStore = (*SQLite)(nil)

// SQLite stores documents as JSON text in a single file database.
type SQLite struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens (creating if needed) the database at path and applies
// migrations.
func OpenSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	// WAL plus a busy timeout lets media writes from parallel rows queue
	// instead of failing immediately.
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &SQLite{db: db, path: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *SQLite) Path() string {
	return s.path
}

func (s *SQLite) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var current int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	pending, err := pendingMigrations("sqlite", current)
	if err != nil {
		return err
	}
	for _, m := range pending {
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("executing migration %s: %w", m.name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.version); err != nil {
			return fmt.Errorf("recording migration %s: %w", m.name, err)
		}
	}
	return nil
}

type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func sqliteInsert(ctx context.Context, db sqlExecer, collection string, data Document, locale string) (Document, error) {
	doc, id := prepareCreate(data)
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}

	_, err = db.ExecContext(ctx,
		"INSERT INTO documents (collection, id, locale, data) VALUES (?, ?, ?, ?)",
		collection, id, locale, string(raw))
	if err != nil {
		return nil, sqliteError(err)
	}
	return doc, nil
}

// Create implements Store.
func (s *SQLite) Create(ctx context.Context, collection string, data Document, locale string) (Document, error) {
	doc, err := sqliteInsert(ctx, s.db, collection, data, locale)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", collection, err)
	}
	return doc, nil
}

// CreateMedia implements MediaStore.
func (s *SQLite) CreateMedia(ctx context.Context, collection string, data Document, file File) (Document, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("create media %s: begin: %w", collection, sqliteError(err))
	}
	defer tx.Rollback() //nolint:errcheck

	doc, err := sqliteInsert(ctx, tx, collection, data, "")
	if err != nil {
		return nil, fmt.Errorf("create media %s: %w", collection, err)
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO media_files (collection, id, filename, mime_type, size, content) VALUES (?, ?, ?, ?, ?, ?)",
		collection, doc.ID(), file.Name, file.MimeType, len(file.Data), file.Data)
	if err != nil {
		return nil, fmt.Errorf("create media %s: file: %w", collection, sqliteError(err))
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("create media %s: commit: %w", collection, sqliteError(err))
	}
	return doc, nil
}

// Find implements Store. Non-id predicates compare json_extract results.
func (s *SQLite) Find(ctx context.Context, collection string, where Where, _ string, limit int) ([]Document, error) {
	query, args, err := buildSQLiteFind(collection, where, limit)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", collection, sqliteError(err))
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("find %s: scan: %w", collection, err)
		}
		doc, err := decodeDocument([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("find %s: %w", collection, err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find %s: %w", collection, sqliteError(err))
	}
	return docs, nil
}

func buildSQLiteFind(collection string, where Where, limit int) (string, []any, error) {
	conds := []string{"collection = ?"}
	args := []any{collection}

	for key, value := range where {
		if key == IDField {
			conds = append(conds, "id = ?")
			args = append(args, IDString(value))
			continue
		}

		parts, err := splitPath(key)
		if err != nil {
			return "", nil, err
		}
		var jp strings.Builder
		jp.WriteString("$")
		for _, p := range parts {
			if strings.ContainsAny(p, `"\`) {
				return "", nil, fmt.Errorf("invalid field path %q", key)
			}
			jp.WriteString(`."` + p + `"`)
		}

		cond, arg, err := sqliteEquals(jp.String(), value)
		if err != nil {
			return "", nil, err
		}
		conds = append(conds, cond)
		args = append(args, arg...)
	}

	query := "SELECT data FROM documents WHERE " + strings.Join(conds, " AND ") + " ORDER BY rowid"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return query, args, nil
}

// sqliteEquals builds an equality test against a JSON path. json_extract
// returns SQL scalars for JSON scalars and minified JSON text otherwise.
func sqliteEquals(path string, value any) (string, []any, error) {
	switch v := value.(type) {
	case nil:
		return "json_type(data, ?) = 'null'", []any{path}, nil
	case bool:
		b := 0
		if v {
			b = 1
		}
		return "json_type(data, ?) IN ('true', 'false') AND json_extract(data, ?) = ?", []any{path, path, b}, nil
	case string:
		return "json_extract(data, ?) = ?", []any{path, v}, nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return "", nil, fmt.Errorf("invalid number %q: %w", v, err)
		}
		return "json_extract(data, ?) = ?", []any{path, f}, nil
	case int, int32, int64, float32, float64:
		return "json_extract(data, ?) = ?", []any{path, v}, nil
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return "", nil, fmt.Errorf("encode filter value: %w", err)
		}
		return "json_extract(data, ?) = json(?)", []any{path, string(raw)}, nil
	}
}

// Update implements Store.
func (s *SQLite) Update(ctx context.Context, collection, id string, data Document, locale string) (Document, error) {
	doc := prepareUpdate(id, data)
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("update %s/%s: encode document: %w", collection, id, err)
	}

	res, err := s.db.ExecContext(ctx,
		"UPDATE documents SET data = ?, locale = ?, updated_at = CURRENT_TIMESTAMP WHERE collection = ? AND id = ?",
		string(raw), locale, collection, id)
	if err != nil {
		return nil, fmt.Errorf("update %s/%s: %w", collection, id, sqliteError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	if n == 0 {
		return nil, fmt.Errorf("update %s/%s: %w", collection, id, ErrNotFound)
	}
	return doc, nil
}

// sqliteError attaches store sentinels to SQLite result codes.
func sqliteError(err error) error {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return err
	}
	switch se.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return fmt.Errorf("%w: %w", ErrWriteConflict, err)
	case sqlite3.SQLITE_CONSTRAINT:
		if se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY || strings.Contains(se.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: %w", ErrDuplicateID, err)
		}
	}
	return err
}

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// PoolOptions tunes the pgx connection pool.
type PoolOptions struct {
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

var _ MediaStore = (*Postgres)(nil)

// Postgres stores documents as JSONB rows in a single documents table.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects, verifies the connection and applies migrations.
func OpenPostgres(ctx context.Context, databaseURL string, opts PoolOptions) (*Postgres, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	if opts.MaxConns > 0 {
		poolConfig.MaxConns = int32(opts.MaxConns)
	}
	if opts.MinConns > 0 {
		poolConfig.MinConns = int32(opts.MinConns)
	}
	if opts.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = opts.MaxConnLifetime
	}
	if opts.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = opts.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	p := &Postgres{pool: pool}
	if err := p.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return p, nil
}

// DatabaseName extracts the database name from a connection URL for logging.
func DatabaseName(databaseURL string) string {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Path, "/")
}

// Close releases the pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

func (p *Postgres) migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`); err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var current int
	if err := p.pool.QueryRow(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	pending, err := pendingMigrations("postgres", current)
	if err != nil {
		return err
	}
	for _, m := range pending {
		if _, err := p.pool.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("executing migration %s: %w", m.name, err)
		}
		if _, err := p.pool.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", m.version); err != nil {
			return fmt.Errorf("recording migration %s: %w", m.name, err)
		}
	}
	return nil
}

// Create implements Store.
func (p *Postgres) Create(ctx context.Context, collection string, data Document, locale string) (Document, error) {
	doc, err := insertDocument(ctx, p.pool, collection, data, locale)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", collection, err)
	}
	return doc, nil
}

// CreateMedia implements MediaStore. The document and its file are written
// in one transaction.
func (p *Postgres) CreateMedia(ctx context.Context, collection string, data Document, file File) (Document, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("create media %s: begin: %w", collection, pgError(err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	doc, err := insertDocument(ctx, tx, collection, data, "")
	if err != nil {
		return nil, fmt.Errorf("create media %s: %w", collection, err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO media_files (collection, id, filename, mime_type, size, content)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		collection, doc.ID(), file.Name, file.MimeType, len(file.Data), file.Data)
	if err != nil {
		return nil, fmt.Errorf("create media %s: file: %w", collection, pgError(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("create media %s: commit: %w", collection, pgError(err))
	}
	return doc, nil
}

func insertDocument(ctx context.Context, db DBTX, collection string, data Document, locale string) (Document, error) {
	doc, id := prepareCreate(data)
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}

	_, err = db.Exec(ctx, `
		INSERT INTO documents (collection, id, locale, data)
		VALUES ($1, $2, $3, $4::jsonb)`,
		collection, id, locale, json.RawMessage(raw))
	if err != nil {
		return nil, pgError(err)
	}
	return doc, nil
}

// Find implements Store. Each non-id predicate is an exact jsonb equality
// on its path; a containment filter over all of them lets the data index
// narrow the scan first.
func (p *Postgres) Find(ctx context.Context, collection string, where Where, _ string, limit int) ([]Document, error) {
	query, args, err := buildFindQuery(collection, where, limit)
	if err != nil {
		return nil, err
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", collection, pgError(err))
	}
	raws, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", collection, pgError(err))
	}

	docs := make([]Document, 0, len(raws))
	for _, raw := range raws {
		doc, err := decodeDocument(raw)
		if err != nil {
			return nil, fmt.Errorf("find %s: %w", collection, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func buildFindQuery(collection string, where Where, limit int) (string, []any, error) {
	conds := []string{"collection = $1"}
	args := []any{collection}

	keys := make([]string, 0, len(where))
	for key := range where {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	type equality struct {
		path  []string
		value json.RawMessage
	}
	var eqs []equality
	filter := make(map[string]any)
	for _, key := range keys {
		value := where[key]
		if key == IDField {
			args = append(args, IDString(value))
			conds = append(conds, fmt.Sprintf("id = $%d", len(args)))
			continue
		}
		parts, err := splitPath(key)
		if err != nil {
			return "", nil, err
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return "", nil, fmt.Errorf("encode filter value %s: %w", key, err)
		}
		setPath(filter, parts, value)
		eqs = append(eqs, equality{path: parts, value: raw})
	}

	if len(filter) > 0 {
		raw, err := json.Marshal(filter)
		if err != nil {
			return "", nil, fmt.Errorf("encode filter: %w", err)
		}
		args = append(args, json.RawMessage(raw))
		conds = append(conds, fmt.Sprintf("data @> $%d::jsonb", len(args)))
	}
	// Containment also accepts supersets of lists and objects.
	for _, eq := range eqs {
		args = append(args, eq.path, eq.value)
		conds = append(conds, fmt.Sprintf("data #> $%d::text[] = $%d::jsonb", len(args)-1, len(args)))
	}

	query := "SELECT data FROM documents WHERE " + strings.Join(conds, " AND ") + " ORDER BY created_at, id"
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return query, args, nil
}

// setPath writes value at a dotted path, creating intermediate objects.
func setPath(m map[string]any, parts []string, value any) {
	for _, p := range parts[:len(parts)-1] {
		next, ok := m[p].(map[string]any)
		if !ok {
			next = make(map[string]any)
			m[p] = next
		}
		m = next
	}
	m[parts[len(parts)-1]] = value
}

// Update implements Store.
func (p *Postgres) Update(ctx context.Context, collection, id string, data Document, locale string) (Document, error) {
	doc := prepareUpdate(id, data)
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("update %s/%s: encode document: %w", collection, id, err)
	}

	tag, err := p.pool.Exec(ctx, `
		UPDATE documents SET data = $3::jsonb, locale = $4, updated_at = now()
		WHERE collection = $1 AND id = $2`,
		collection, id, json.RawMessage(raw), locale)
	if err != nil {
		return nil, fmt.Errorf("update %s/%s: %w", collection, id, pgError(err))
	}
	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("update %s/%s: %w", collection, id, ErrNotFound)
	}
	return doc, nil
}

// pgError attaches store sentinels to PostgreSQL errors callers act on.
func pgError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "40001", "40P01", "55P03": // serialization_failure, deadlock_detected, lock_not_available
		return fmt.Errorf("%w: %w", ErrWriteConflict, err)
	case "23505": // unique_violation
		return fmt.Errorf("%w: %w", ErrDuplicateID, err)
	}
	return err
}

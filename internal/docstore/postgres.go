package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres stores documents in a single JSONB-backed table keyed by
// (collection, id). Merge and append operations execute as single UPDATE
// statements so concurrent writers on the same document serialize at the
// database row.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgres creates a Postgres-backed document store.
func NewPostgres(log *slog.Logger, pool *pgxpool.Pool) *Postgres {
	if log == nil {
		log = slog.Default()
	}
	return &Postgres{
		pool:   pool,
		logger: log.With(slog.String("store", "postgres")),
	}
}

func (p *Postgres) Get(ctx context.Context, collection, id string) (Doc, error) {
	var raw []byte
	err := p.pool.QueryRow(ctx,
		`SELECT doc FROM documents WHERE collection = $1 AND id = $2`,
		collection, id,
	).Scan(&raw)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	var doc Doc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	return doc, nil
}

func (p *Postgres) Set(ctx context.Context, collection, id string, doc Doc, merge bool) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	query := `INSERT INTO documents (collection, id, doc) VALUES ($1, $2, $3)
		ON CONFLICT (collection, id) DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()`
	if merge {
		query = `INSERT INTO documents (collection, id, doc) VALUES ($1, $2, $3)
			ON CONFLICT (collection, id) DO UPDATE SET doc = documents.doc || EXCLUDED.doc, updated_at = now()`
	}
	if _, err := p.pool.Exec(ctx, query, collection, id, raw); err != nil {
		return fmt.Errorf("set %s/%s: %w", collection, id, err)
	}
	return nil
}

func (p *Postgres) Create(ctx context.Context, collection, id string, doc Doc) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	tag, err := p.pool.Exec(ctx,
		`INSERT INTO documents (collection, id, doc) VALUES ($1, $2, $3)
		 ON CONFLICT (collection, id) DO NOTHING`,
		collection, id, raw,
	)
	if err != nil {
		return fmt.Errorf("create %s/%s: %w", collection, id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrExists
	}
	return nil
}

func (p *Postgres) Update(ctx context.Context, collection, id string, partial Doc) error {
	raw, err := json.Marshal(partial)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	tag, err := p.pool.Exec(ctx,
		`UPDATE documents SET doc = doc || $3, updated_at = now()
		 WHERE collection = $1 AND id = $2`,
		collection, id, raw,
	)
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) ArrayAppend(ctx context.Context, collection, id, field string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s/%s.%s: %w", collection, id, field, err)
	}
	// Concatenating a non-array value to a JSONB array appends it as one element.
	tag, err := p.pool.Exec(ctx,
		`UPDATE documents
		 SET doc = jsonb_set(doc, ARRAY[$3], COALESCE(doc -> $3, '[]'::jsonb) || $4::jsonb),
		     updated_at = now()
		 WHERE collection = $1 AND id = $2`,
		collection, id, field, raw,
	)
	if err != nil {
		return fmt.Errorf("append %s/%s.%s: %w", collection, id, field, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) ArrayUpdate(ctx context.Context, collection, id, field, matchField string, matchValue any, partial Doc) (bool, error) {
	raw, err := json.Marshal(partial)
	if err != nil {
		return false, fmt.Errorf("encode %s/%s.%s: %w", collection, id, field, err)
	}
	// One statement: rebuild the array with the partial merged into matching
	// elements, so a concurrent append serializes at the row instead of being
	// overwritten by a stale read.
	var matched bool
	err = p.pool.QueryRow(ctx,
		`UPDATE documents
		 SET doc = jsonb_set(doc, ARRAY[$3], (
		         SELECT COALESCE(jsonb_agg(
		             CASE WHEN elem ->> $4 = $5 THEN elem || $6::jsonb ELSE elem END
		         ), '[]'::jsonb)
		         FROM jsonb_array_elements(COALESCE(doc -> $3, '[]'::jsonb)) AS elem
		     )),
		     updated_at = now()
		 WHERE collection = $1 AND id = $2
		 RETURNING EXISTS (
		     SELECT 1 FROM jsonb_array_elements(doc -> $3) AS elem WHERE elem ->> $4 = $5
		 )`,
		collection, id, field, matchField, fmt.Sprintf("%v", matchValue), raw,
	).Scan(&matched)
	if err != nil {
		if err == pgx.ErrNoRows {
			return false, ErrNotFound
		}
		return false, fmt.Errorf("array update %s/%s.%s: %w", collection, id, field, err)
	}
	return matched, nil
}

func (p *Postgres) Add(ctx context.Context, collection string, doc Doc) (string, error) {
	id := uuid.NewString()
	if err := p.Set(ctx, collection, id, doc, false); err != nil {
		return "", err
	}
	return id, nil
}

func (p *Postgres) Query(ctx context.Context, collection string, filters []Filter, limit int) ([]Entry, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT id, doc FROM documents WHERE collection = $1`)
	args := []any{collection}
	for _, f := range filters {
		op, err := sqlOp(f.Op)
		if err != nil {
			return nil, err
		}
		args = append(args, f.Field, fmt.Sprintf("%v", f.Value))
		fmt.Fprintf(&sb, ` AND doc ->> $%d %s $%d`, len(args)-1, op, len(args))
	}
	if limit > 0 {
		args = append(args, limit)
		fmt.Fprintf(&sb, ` LIMIT $%d`, len(args))
	}

	rows, err := p.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan %s: %w", collection, err)
		}
		var doc Doc
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", collection, id, err)
		}
		entries = append(entries, Entry{ID: id, Doc: doc})
	}
	return entries, rows.Err()
}

func sqlOp(op string) (string, error) {
	switch op {
	case "==":
		return "=", nil
	case "<=":
		return "<=", nil
	default:
		return "", fmt.Errorf("unsupported filter op: %s", op)
	}
}

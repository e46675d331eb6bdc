package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of *pgxpool.Pool the Postgres backend uses.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// PostgresStore keeps each collection in a table of JSONB documents created
// by the migrations package.
type PostgresStore struct {
	db Querier
}

func NewPostgresStore(db Querier) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Collection(name string) Collection {
	return &pgCollection{db: s.db, table: name}
}

func (s *PostgresStore) Ping(ctx context.Context) error { return s.db.Ping(ctx) }

func (s *PostgresStore) Close(context.Context) error {
	if c, ok := s.db.(interface{ Close() }); ok {
		c.Close()
	}
	return nil
}

type pgCollection struct {
	db    Querier
	table string
}

func (c *pgCollection) Name() string { return c.table }

// where builds the WHERE clause for f. Values are bound as text and cast on
// the server so JSON numbers, strings and booleans compare the same way.
func (c *pgCollection) where(f Filter) (string, []any, error) {
	if err := validField(c.table); err != nil {
		return "", nil, err
	}
	if len(f) == 0 {
		return "", nil, nil
	}
	parts := make([]string, 0, len(f))
	args := make([]any, 0, len(f))
	for i, cond := range f {
		if err := validField(cond.Field); err != nil {
			return "", nil, err
		}
		n := i + 1
		switch cond.Op {
		case OpEq:
			parts = append(parts, fmt.Sprintf("doc->>'%s' = $%d::text", cond.Field, n))
		case OpGt:
			parts = append(parts, fmt.Sprintf("(doc->>'%s')::numeric > $%d::text::numeric", cond.Field, n))
		default:
			return "", nil, fmt.Errorf("docstore: unsupported operator %d", cond.Op)
		}
		args = append(args, textValue(cond.Value))
	}
	return " WHERE " + strings.Join(parts, " AND "), args, nil
}

func (c *pgCollection) Insert(ctx context.Context, doc Document) error {
	if err := validField(c.table); err != nil {
		return err
	}
	if doc.DocumentID() == "" {
		doc.SetDocumentID(uuid.NewString())
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s document: %w", c.table, err)
	}

	query := fmt.Sprintf(`INSERT INTO %s (id, doc, created_at, updated_at) VALUES ($1, $2, NOW(), NOW())`, c.table)
	if _, err := c.db.Exec(ctx, query, doc.DocumentID(), raw); err != nil {
		return fmt.Errorf("insert %s: %w", c.table, err)
	}
	return nil
}

func (c *pgCollection) FindOne(ctx context.Context, f Filter, out Document) error {
	where, args, err := c.where(f)
	if err != nil {
		return err
	}

	var raw []byte
	query := fmt.Sprintf(`SELECT doc FROM %s%s ORDER BY created_at LIMIT 1`, c.table, where)
	err = c.db.QueryRow(ctx, query, args...).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("find %s: %w", c.table, err)
	}
	return json.Unmarshal(raw, out)
}

func (c *pgCollection) Find(ctx context.Context, f Filter, opts FindOptions, out interface{}) error {
	where, args, err := c.where(f)
	if err != nil {
		return err
	}

	order := " ORDER BY created_at"
	if s := opts.Sort; s != nil {
		if err := validField(s.Field); err != nil {
			return err
		}
		expr := fmt.Sprintf("doc->>'%s'", s.Field)
		if s.Chrono {
			expr = fmt.Sprintf("(doc->>'%s')::timestamptz", s.Field)
		}
		dir := "ASC"
		if s.Desc {
			dir = "DESC"
		}
		order = fmt.Sprintf(" ORDER BY %s %s NULLS LAST", expr, dir)
	}
	limit := ""
	if opts.Limit > 0 {
		limit = fmt.Sprintf(" LIMIT %d", opts.Limit)
	}

	query := fmt.Sprintf(`SELECT doc FROM %s%s%s%s`, c.table, where, order, limit)
	rows, err := c.db.Query(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("find %s: %w", c.table, err)
	}
	defer rows.Close()

	var docs [][]byte
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return fmt.Errorf("scan %s: %w", c.table, err)
		}
		docs = append(docs, raw)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate %s: %w", c.table, err)
	}

	var buf bytes.Buffer
	buf.WriteByte('[')
	buf.Write(bytes.Join(docs, []byte(",")))
	buf.WriteByte(']')
	return json.Unmarshal(buf.Bytes(), out)
}

func (c *pgCollection) Replace(ctx context.Context, doc Document) error {
	if err := validField(c.table); err != nil {
		return err
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s document: %w", c.table, err)
	}

	query := fmt.Sprintf(`UPDATE %s SET doc = $2, updated_at = NOW() WHERE id = $1`, c.table)
	tag, err := c.db.Exec(ctx, query, doc.DocumentID(), raw)
	if err != nil {
		return fmt.Errorf("replace %s: %w", c.table, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (c *pgCollection) Delete(ctx context.Context, id string) error {
	if err := validField(c.table); err != nil {
		return err
	}
	tag, err := c.db.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, c.table), id)
	if err != nil {
		return fmt.Errorf("delete %s: %w", c.table, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (c *pgCollection) Count(ctx context.Context, f Filter) (int64, error) {
	where, args, err := c.where(f)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := c.db.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s%s`, c.table, where), args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", c.table, err)
	}
	return n, nil
}

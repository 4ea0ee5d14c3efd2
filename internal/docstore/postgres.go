package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var fieldPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// PostgresStore keeps every collection in one JSONB documents table.
type PostgresStore struct {
	db DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore wraps a pgx pool (or anything with the same query surface).
func NewPostgresStore(db DB) *PostgresStore {
	if db == nil {
		panic("docstore: pgx pool required")
	}
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Insert(ctx context.Context, collection string, doc Document) (string, error) {
	stored, id := prepareInsert(doc)
	body, err := json.Marshal(stored)
	if err != nil {
		return "", fmt.Errorf("docstore: marshal %s: %w", collection, err)
	}

	tag, err := s.db.Exec(ctx, `
		INSERT INTO documents (collection, id, body)
		VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (collection, id) DO NOTHING`,
		collection, id, string(body),
	)
	if err != nil {
		return "", fmt.Errorf("docstore: insert %s: %w", collection, err)
	}
	if tag.RowsAffected() == 0 {
		return "", ErrDuplicateID
	}
	return id, nil
}

func (s *PostgresStore) Get(ctx context.Context, collection, id string) (Document, error) {
	var body []byte
	err := s.db.QueryRow(ctx,
		`SELECT body FROM documents WHERE collection = $1 AND id = $2`,
		collection, id,
	).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("docstore: get %s: %w", collection, err)
	}
	return decodeBody(body)
}

func (s *PostgresStore) Find(ctx context.Context, collection string, q Query) ([]Document, error) {
	where, args, err := buildWhere(collection, q)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, `SELECT body FROM documents WHERE `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("docstore: find %s: %w", collection, err)
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("docstore: scan %s: %w", collection, err)
		}
		doc, err := decodeBody(body)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("docstore: find %s: %w", collection, err)
	}
	return Finish(out, q), nil
}

func (s *PostgresStore) Count(ctx context.Context, collection string, q Query) (int, error) {
	where, args, err := buildWhere(collection, q)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM documents WHERE `+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("docstore: count %s: %w", collection, err)
	}
	return int(n), nil
}

func (s *PostgresStore) Update(ctx context.Context, collection, id string, fields Document) error {
	patch, err := json.Marshal(prepareUpdate(fields))
	if err != nil {
		return fmt.Errorf("docstore: marshal %s patch: %w", collection, err)
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE documents SET body = body || $3::jsonb, updated_at = now()
		WHERE collection = $1 AND id = $2`,
		collection, id, string(patch),
	)
	if err != nil {
		return fmt.Errorf("docstore: update %s: %w", collection, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, collection, id string) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM documents WHERE collection = $1 AND id = $2`,
		collection, id,
	)
	if err != nil {
		return false, fmt.Errorf("docstore: delete %s: %w", collection, err)
	}
	return tag.RowsAffected() > 0, nil
}

// buildWhere renders q's filters as JSONB predicates. Equality uses
// containment so numbers and strings compare by JSON type.
func buildWhere(collection string, q Query) (string, []any, error) {
	clauses := []string{"collection = $1"}
	args := []any{collection}

	for _, f := range q.Filters {
		if !fieldPattern.MatchString(f.Field) {
			return "", nil, fmt.Errorf("docstore: invalid field name %q", f.Field)
		}
		switch f.Op {
		case OpEq:
			probe, err := json.Marshal(map[string]any{f.Field: normalize(f.Values[0])})
			if err != nil {
				return "", nil, fmt.Errorf("docstore: encode filter: %w", err)
			}
			args = append(args, string(probe))
			clauses = append(clauses, fmt.Sprintf("body @> $%d::jsonb", len(args)))
		case OpIn:
			values := make([]string, 0, len(f.Values))
			for _, v := range f.Values {
				raw, err := json.Marshal(normalize(v))
				if err != nil {
					return "", nil, fmt.Errorf("docstore: encode filter: %w", err)
				}
				values = append(values, string(raw))
			}
			args = append(args, values)
			clauses = append(clauses, fmt.Sprintf("body->'%s' = ANY($%d::jsonb[])", f.Field, len(args)))
		default:
			return "", nil, fmt.Errorf("docstore: unsupported operator %q", f.Op)
		}
	}
	return strings.Join(clauses, " AND "), args, nil
}

func decodeBody(body []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("docstore: decode body: %w", err)
	}
	return doc, nil
}

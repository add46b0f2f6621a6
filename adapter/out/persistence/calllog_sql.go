package persistence

import (
	"context"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"
)

// Common persistence errors
var (
	ErrNotFound      = errors.New("not found")
	ErrUnknownColumn = errors.New("unknown column")
)

// maxInParams bounds the size of one IN (...) list.
const maxInParams = 500

// quoteIdent quotes a column name; both dialects accept double quotes.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func chunk[T any](items []T, size int) [][]T {
	if len(items) == 0 {
		return nil
	}
	out := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[start:end])
	}
	return out
}

// selectIn runs query (which contains a single "IN (?)") once per chunk of
// values and appends every result into dest.
func selectIn[T any, V any](ctx context.Context, q sqlx.QueryerContext, query string, values []V, extra ...any) ([]T, error) {
	var all []T
	for _, part := range chunk(values, maxInParams) {
		args := append([]any{part}, extra...)
		expanded, expandedArgs, err := sqlx.In(query, args...)
		if err != nil {
			return nil, err
		}
		var rows []T
		if err := sqlx.SelectContext(ctx, q, &rows, rebind(q, expanded), expandedArgs...); err != nil {
			return nil, err
		}
		all = append(all, rows...)
	}
	return all, nil
}

// execIn runs a statement with a single "IN (?)" per chunk of values.
func execIn[V any](ctx context.Context, e sqlx.ExtContext, query string, values []V) error {
	for _, part := range chunk(values, maxInParams) {
		expanded, args, err := sqlx.In(query, part)
		if err != nil {
			return err
		}
		if _, err := e.ExecContext(ctx, e.Rebind(expanded), args...); err != nil {
			return err
		}
	}
	return nil
}

type rebinder interface {
	Rebind(string) string
}

func rebind(q any, query string) string {
	if r, ok := q.(rebinder); ok {
		return r.Rebind(query)
	}
	return query
}

package persistence

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"calllog_server/pkg/apperr"
)

// KeyValueAdapter stores watermarks and flags in the calllog_kv table.
type KeyValueAdapter struct {
	db *sqlx.DB
}

func NewKeyValueAdapter(db *sqlx.DB) *KeyValueAdapter {
	return &KeyValueAdapter{db: db}
}

func (a *KeyValueAdapter) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := a.db.GetContext(ctx, &value, a.db.Rebind(`SELECT value FROM calllog_kv WHERE "key" = ?`), key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, apperr.DatabaseError("kv get", err)
	}
	return value, true, nil
}

func (a *KeyValueAdapter) Put(ctx context.Context, key, value string) error {
	_, err := a.db.ExecContext(ctx, a.db.Rebind(
		`INSERT INTO calllog_kv ("key", value) VALUES (?, ?)
		ON CONFLICT ("key") DO UPDATE SET value = excluded.value`), key, value)
	if err != nil {
		return apperr.DatabaseError("kv put", err)
	}
	return nil
}

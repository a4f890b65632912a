package sqlite

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

type settingRow struct {
	Variable string `db:"variable"`
	Value    string `db:"value"`
}

func (r *SQLiteRepo) AllSettings(ctx context.Context) (map[string]string, error) {
	var rows []settingRow
	if err := r.conn.Select(ctx, &rows, `SELECT variable, value FROM settings`); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(rows))
	for _, row := range rows {
		out[row.Variable] = row.Value
	}
	return out, nil
}

func (r *SQLiteRepo) SetSettings(ctx context.Context, values map[string]string) error {
	return r.conn.WithTx(ctx, func(tx *sqlx.Tx) error {
		for k, v := range values {
			if _, err := tx.ExecContext(ctx, `INSERT INTO settings (variable, value) VALUES (?, ?)
				ON CONFLICT(variable) DO UPDATE SET value = excluded.value`, k, v); err != nil {
				return fmt.Errorf("set %s: %w", k, err)
			}
		}
		return nil
	})
}

package sqlite

import (
	"context"
	"fmt"

	"github.com/StoryBB/StoryBB-sub005/pkg/models"
	"github.com/jmoiron/sqlx"
)

const fieldColumns = `id_field, col_name, field_name, field_desc, field_type, field_length, field_options, mask, private, active, field_order, default_value`

func (r *SQLiteRepo) ListCustomFields(ctx context.Context, activeOnly bool) ([]models.CustomField, error) {
	var out []models.CustomField
	err := r.conn.Select(ctx, &out, `SELECT `+fieldColumns+` FROM custom_fields WHERE (? = 0 OR active = 1) ORDER BY field_order, id_field`, boolInt(activeOnly))
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *SQLiteRepo) GetCustomField(ctx context.Context, id int64) (*models.CustomField, error) {
	var f models.CustomField
	if err := r.conn.Get(ctx, &f, `SELECT `+fieldColumns+` FROM custom_fields WHERE id_field = ?`, id); err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &f, nil
}

func (r *SQLiteRepo) CreateCustomField(ctx context.Context, f *models.CustomField) (int64, error) {
	if f == nil {
		return 0, fmt.Errorf("custom field is nil")
	}
	res, err := r.conn.Exec(ctx, `INSERT INTO custom_fields (col_name, field_name, field_desc, field_type, field_length, field_options, mask,
		private, active, field_order, default_value) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ColName, f.Name, f.Description, f.Type, f.Length, f.Options, f.Mask, f.Private, boolInt(f.Active), f.Order, f.Default)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	f.ID = id
	return id, nil
}

func (r *SQLiteRepo) DeleteCustomField(ctx context.Context, id int64) error {
	return r.conn.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM custom_field_values WHERE id_field = ?`, id); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM custom_fields WHERE id_field = ?`, id)
		return err
	})
}

type fieldValueRow struct {
	FieldID int64  `db:"id_field"`
	Value   string `db:"value"`
}

func (r *SQLiteRepo) FieldValues(ctx context.Context, memberID int64) (map[int64]string, error) {
	var rows []fieldValueRow
	if err := r.conn.Select(ctx, &rows, `SELECT id_field, value FROM custom_field_values WHERE id_member = ?`, memberID); err != nil {
		return nil, err
	}
	out := make(map[int64]string, len(rows))
	for _, row := range rows {
		out[row.FieldID] = row.Value
	}
	return out, nil
}

func (r *SQLiteRepo) SetFieldValues(ctx context.Context, memberID int64, values map[int64]string) error {
	return r.conn.WithTx(ctx, func(tx *sqlx.Tx) error {
		for id, v := range values {
			if _, err := tx.ExecContext(ctx, `INSERT INTO custom_field_values (id_member, id_field, value) VALUES (?, ?, ?)
				ON CONFLICT(id_member, id_field) DO UPDATE SET value = excluded.value`, memberID, id, v); err != nil {
				return fmt.Errorf("set field %d: %w", id, err)
			}
		}
		return nil
	})
}

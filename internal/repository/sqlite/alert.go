package sqlite

import (
	"context"
	"fmt"

	"github.com/StoryBB/StoryBB-sub005/pkg/models"
	"github.com/jmoiron/sqlx"
)

const alertColumns = `id_alert, alert_time, id_member, id_member_started, content_type, content_id, content_action, is_read, extra`

const insertAlert = `INSERT INTO user_alerts (alert_time, id_member, id_member_started, content_type, content_id, content_action, is_read, extra)
	VALUES (?, ?, ?, ?, ?, ?, 0, ?)`

func alertDefaults(a *models.Alert) {
	if a.Time == 0 {
		a.Time = now()
	}
	if a.Extra == "" {
		a.Extra = "{}"
	}
}

func (r *SQLiteRepo) CreateAlert(ctx context.Context, a *models.Alert) (int64, error) {
	if a == nil {
		return 0, fmt.Errorf("alert is nil")
	}
	alertDefaults(a)
	res, err := r.conn.Exec(ctx, insertAlert, a.Time, a.MemberID, a.StartedBy, a.ContentType, a.ContentID, a.Action, a.Extra)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// DeliverAlert writes a site alert and a queued mail for one recipient
// together. Either may be nil.
func (r *SQLiteRepo) DeliverAlert(ctx context.Context, a *models.Alert, m *models.MailItem) error {
	if a == nil && m == nil {
		return nil
	}
	return r.conn.WithTx(ctx, func(tx *sqlx.Tx) error {
		if a != nil {
			alertDefaults(a)
			if _, err := tx.ExecContext(ctx, insertAlert, a.Time, a.MemberID, a.StartedBy, a.ContentType, a.ContentID, a.Action, a.Extra); err != nil {
				return fmt.Errorf("insert alert: %w", err)
			}
		}
		if m != nil {
			mailDefaults(m)
			if _, err := tx.ExecContext(ctx, insertMail, m.Time, m.Recipient, m.Subject, m.Body, m.Priority); err != nil {
				return fmt.Errorf("insert mail: %w", err)
			}
		}
		return nil
	})
}

func (r *SQLiteRepo) ListAlerts(ctx context.Context, memberID int64, limit, offset int) ([]models.Alert, error) {
	if limit <= 0 {
		limit = 25
	}
	if offset < 0 {
		offset = 0
	}
	var out []models.Alert
	err := r.conn.Select(ctx, &out, `SELECT `+alertColumns+` FROM user_alerts WHERE id_member = ? ORDER BY alert_time DESC, id_alert DESC LIMIT ? OFFSET ?`,
		memberID, limit, offset)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *SQLiteRepo) CountAlerts(ctx context.Context, memberID int64, unreadOnly bool) (int, error) {
	var n int
	err := r.conn.Get(ctx, &n, `SELECT COUNT(1) FROM user_alerts WHERE id_member = ? AND (? = 0 OR is_read = 0)`, memberID, boolInt(unreadOnly))
	return n, err
}

// MarkAlertsRead marks the given alerts read; an empty list marks all.
func (r *SQLiteRepo) MarkAlertsRead(ctx context.Context, memberID int64, alertIDs []int64) (int64, error) {
	q := `UPDATE user_alerts SET is_read = 1 WHERE id_member = ? AND is_read = 0`
	args := []any{memberID}
	if len(alertIDs) > 0 {
		ph, idArgs := inClause(alertIDs)
		q += ` AND id_alert IN (` + ph + `)`
		args = append(args, idArgs...)
	}
	res, err := r.conn.Exec(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *SQLiteRepo) DeleteAlert(ctx context.Context, memberID, alertID int64) (bool, error) {
	res, err := r.conn.Exec(ctx, `DELETE FROM user_alerts WHERE id_member = ? AND id_alert = ?`, memberID, alertID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

type prefRow struct {
	Member int64  `db:"id_member"`
	Pref   string `db:"alert_pref"`
	Value  int    `db:"alert_value"`
}

func (r *SQLiteRepo) AlertPrefs(ctx context.Context, memberID int64) (map[string]int, error) {
	var rows []prefRow
	err := r.conn.Select(ctx, &rows, `SELECT id_member, alert_pref, alert_value FROM user_alerts_prefs WHERE id_member IN (0, ?) ORDER BY id_member`, memberID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(rows))
	for _, row := range rows {
		out[row.Pref] = row.Value
	}
	return out, nil
}

func (r *SQLiteRepo) SetAlertPrefs(ctx context.Context, memberID int64, prefs map[string]int) error {
	return r.conn.WithTx(ctx, func(tx *sqlx.Tx) error {
		for pref, value := range prefs {
			if _, err := tx.ExecContext(ctx, `INSERT INTO user_alerts_prefs (id_member, alert_pref, alert_value) VALUES (?, ?, ?)
				ON CONFLICT(id_member, alert_pref) DO UPDATE SET alert_value = excluded.alert_value`, memberID, pref, value); err != nil {
				return fmt.Errorf("set alert pref %s: %w", pref, err)
			}
		}
		return nil
	})
}

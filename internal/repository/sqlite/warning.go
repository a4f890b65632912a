package sqlite

import (
	"context"
	"fmt"

	"github.com/StoryBB/StoryBB-sub005/pkg/models"
	"github.com/jmoiron/sqlx"
)

func (r *SQLiteRepo) AddWarning(ctx context.Context, w *models.Warning, newLevel int) (int64, error) {
	if w == nil {
		return 0, fmt.Errorf("warning is nil")
	}
	if w.Time == 0 {
		w.Time = now()
	}
	var id int64
	err := r.conn.WithTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `INSERT INTO log_comments (id_member, member_name, comment_type, id_recipient, log_time, counter, body)
			VALUES (?, ?, 'warning', ?, ?, ?, ?)`, w.IssuerID, w.IssuerName, w.RecipientID, w.Time, w.Counter, w.Reason)
		if err != nil {
			return fmt.Errorf("insert warning: %w", err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE members SET warning = ? WHERE id_member = ?`, newLevel, w.RecipientID)
		return err
	})
	if err != nil {
		return 0, err
	}
	w.ID = id
	return id, nil
}

// WarningPointsSince sums the level changes issuerID applied to recipientID
// since the given time.
func (r *SQLiteRepo) WarningPointsSince(ctx context.Context, issuerID, recipientID, since int64) (int, error) {
	var n int
	err := r.conn.Get(ctx, &n, `SELECT COALESCE(SUM(counter), 0) FROM log_comments
		WHERE comment_type = 'warning' AND id_member = ? AND id_recipient = ? AND log_time > ?`, issuerID, recipientID, since)
	return n, err
}

func (r *SQLiteRepo) ListWarnings(ctx context.Context, recipientID int64, limit, offset int) ([]models.Warning, error) {
	if limit <= 0 {
		limit = 25
	}
	if offset < 0 {
		offset = 0
	}
	var out []models.Warning
	err := r.conn.Select(ctx, &out, `SELECT id_comment, id_member, member_name, id_recipient, log_time, counter, body FROM log_comments
		WHERE comment_type = 'warning' AND id_recipient = ? ORDER BY log_time DESC, id_comment DESC LIMIT ? OFFSET ?`, recipientID, limit, offset)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *SQLiteRepo) CountWarnings(ctx context.Context, recipientID int64) (int, error) {
	var n int
	err := r.conn.Get(ctx, &n, `SELECT COUNT(1) FROM log_comments WHERE comment_type = 'warning' AND id_recipient = ?`, recipientID)
	return n, err
}

package sqlite

import (
	"context"
	"fmt"

	"github.com/StoryBB/StoryBB-sub005/pkg/models"
)

func (r *SQLiteRepo) LogAction(ctx context.Context, a *models.ActionLog) (int64, error) {
	if a == nil {
		return 0, fmt.Errorf("action log is nil")
	}
	if a.Time == 0 {
		a.Time = now()
	}
	if a.Extra == "" {
		a.Extra = "{}"
	}
	res, err := r.conn.Exec(ctx, `INSERT INTO log_actions (id_log, log_time, id_member, ip, action, id_member_affected, extra) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.Log, a.Time, a.MemberID, a.IP, a.Action, a.AffectedID, a.Extra)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListActions lists log rows of one log type; affectedID 0 lists all members.
func (r *SQLiteRepo) ListActions(ctx context.Context, logType int, affectedID int64, limit, offset int) ([]models.ActionLog, error) {
	if limit <= 0 {
		limit = 25
	}
	if offset < 0 {
		offset = 0
	}
	var out []models.ActionLog
	err := r.conn.Select(ctx, &out, `SELECT id_action, id_log, log_time, id_member, ip, action, id_member_affected, extra FROM log_actions
		WHERE id_log = ? AND (? = 0 OR id_member_affected = ?) ORDER BY log_time DESC, id_action DESC LIMIT ? OFFSET ?`,
		logType, affectedID, affectedID, limit, offset)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *SQLiteRepo) CountActions(ctx context.Context, logType int, affectedID int64) (int, error) {
	var n int
	err := r.conn.Get(ctx, &n, `SELECT COUNT(1) FROM log_actions WHERE id_log = ? AND (? = 0 OR id_member_affected = ?)`, logType, affectedID, affectedID)
	return n, err
}

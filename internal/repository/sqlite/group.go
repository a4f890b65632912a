package sqlite

import (
	"context"
	"fmt"

	"github.com/StoryBB/StoryBB-sub005/pkg/models"
	"github.com/jmoiron/sqlx"
)

const groupColumns = `id_group, group_name, description, group_type, hidden, is_character, online_color`

const requestSelect = `SELECT r.id_request, r.id_member, COALESCE(m.member_name, '') AS member_name, r.id_group,
	COALESCE(g.group_name, '') AS group_name, r.time_applied, r.reason, r.status, r.id_member_acted, r.time_acted, r.act_reason
	FROM log_group_requests r
	LEFT JOIN members m ON m.id_member = r.id_member
	LEFT JOIN membergroups g ON g.id_group = r.id_group`

func (r *SQLiteRepo) GetGroup(ctx context.Context, id int64) (*models.Group, error) {
	var g models.Group
	if err := r.conn.Get(ctx, &g, `SELECT `+groupColumns+` FROM membergroups WHERE id_group = ?`, id); err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &g, nil
}

func (r *SQLiteRepo) ListGroups(ctx context.Context) ([]models.Group, error) {
	var out []models.Group
	if err := r.conn.Select(ctx, &out, `SELECT `+groupColumns+` FROM membergroups ORDER BY id_group`); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *SQLiteRepo) AdditionalGroups(ctx context.Context, memberID int64) ([]int64, error) {
	var out []int64
	if err := r.conn.Select(ctx, &out, `SELECT id_group FROM member_groups_extra WHERE id_member = ? ORDER BY id_group`, memberID); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *SQLiteRepo) AddAdditionalGroup(ctx context.Context, memberID, groupID int64) error {
	_, err := r.conn.Exec(ctx, `INSERT OR IGNORE INTO member_groups_extra (id_member, id_group) VALUES (?, ?)`, memberID, groupID)
	return err
}

// SetPrimaryGroup makes groupID the primary group. The previous primary
// group, if any, becomes an additional group.
func (r *SQLiteRepo) SetPrimaryGroup(ctx context.Context, memberID, groupID int64) error {
	return r.conn.WithTx(ctx, func(tx *sqlx.Tx) error {
		var old int64
		if err := tx.GetContext(ctx, &old, `SELECT id_group FROM members WHERE id_member = ?`, memberID); err != nil {
			return fmt.Errorf("load primary group: %w", err)
		}
		if old == groupID {
			return nil
		}
		if old != models.GroupRegular {
			if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO member_groups_extra (id_member, id_group) VALUES (?, ?)`, memberID, old); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM member_groups_extra WHERE id_member = ? AND id_group = ?`, memberID, groupID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `UPDATE members SET id_group = ? WHERE id_member = ?`, groupID, memberID)
		return err
	})
}

func (r *SQLiteRepo) GroupModerators(ctx context.Context, groupID int64) ([]int64, error) {
	var out []int64
	if err := r.conn.Select(ctx, &out, `SELECT id_member FROM group_moderators WHERE id_group = ? ORDER BY id_member`, groupID); err != nil {
		return nil, err
	}
	return out, nil
}

// MembersInGroup returns members holding the group as primary or additional.
func (r *SQLiteRepo) MembersInGroup(ctx context.Context, groupID int64) ([]int64, error) {
	var out []int64
	err := r.conn.Select(ctx, &out, `SELECT id_member FROM members WHERE id_group = ?
		UNION SELECT id_member FROM member_groups_extra WHERE id_group = ? ORDER BY 1`, groupID, groupID)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *SQLiteRepo) CreateGroupRequest(ctx context.Context, req *models.GroupRequest) (int64, error) {
	if req == nil {
		return 0, fmt.Errorf("group request is nil")
	}
	if req.Applied == 0 {
		req.Applied = now()
	}
	res, err := r.conn.Exec(ctx, `INSERT INTO log_group_requests (id_member, id_group, time_applied, reason, status) VALUES (?, ?, ?, ?, ?)`,
		req.MemberID, req.GroupID, req.Applied, req.Reason, models.RequestOpen)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *SQLiteRepo) OpenGroupRequest(ctx context.Context, memberID, groupID int64) (*models.GroupRequest, error) {
	var req models.GroupRequest
	err := r.conn.Get(ctx, &req, requestSelect+` WHERE r.id_member = ? AND r.id_group = ? AND r.status = ? LIMIT 1`,
		memberID, groupID, models.RequestOpen)
	if err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &req, nil
}

func (r *SQLiteRepo) GetGroupRequest(ctx context.Context, id int64) (*models.GroupRequest, error) {
	var req models.GroupRequest
	if err := r.conn.Get(ctx, &req, requestSelect+` WHERE r.id_request = ?`, id); err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &req, nil
}

// ListGroupRequests filters by status; memberID 0 lists every member.
func (r *SQLiteRepo) ListGroupRequests(ctx context.Context, memberID int64, status int) ([]models.GroupRequest, error) {
	var out []models.GroupRequest
	err := r.conn.Select(ctx, &out, requestSelect+` WHERE r.status = ? AND (? = 0 OR r.id_member = ?) ORDER BY r.time_applied, r.id_request`,
		status, memberID, memberID)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ResolveGroupRequest closes an open request. An approved request grants the
// group in the same transaction. It reports false when the request was no
// longer open.
func (r *SQLiteRepo) ResolveGroupRequest(ctx context.Context, id int64, status int, actorID int64, reason string, at int64) (bool, error) {
	var resolved bool
	err := r.conn.WithTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE log_group_requests SET status = ?, id_member_acted = ?, act_reason = ?, time_acted = ?
			WHERE id_request = ? AND status = ?`, status, actorID, reason, at, id, models.RequestOpen)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil || n == 0 {
			return err
		}
		resolved = true
		if status != models.RequestApproved {
			return nil
		}
		_, err = tx.ExecContext(ctx, `INSERT OR IGNORE INTO member_groups_extra (id_member, id_group)
			SELECT id_member, id_group FROM log_group_requests WHERE id_request = ?`, id)
		return err
	})
	if err != nil {
		return false, err
	}
	return resolved, nil
}

// LeaveGroup drops groupID from the member. Leaving the primary group falls
// back to the regular members group.
func (r *SQLiteRepo) LeaveGroup(ctx context.Context, memberID, groupID int64) error {
	return r.conn.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `UPDATE members SET id_group = ? WHERE id_member = ? AND id_group = ?`,
			models.GroupRegular, memberID, groupID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM member_groups_extra WHERE id_member = ? AND id_group = ?`, memberID, groupID)
		return err
	})
}

// GroupPermissions returns the permission rows of the given groups.
func (r *SQLiteRepo) GroupPermissions(ctx context.Context, groupIDs []int64) ([]models.Permission, error) {
	if len(groupIDs) == 0 {
		return nil, nil
	}
	ph, args := inClause(groupIDs)
	var out []models.Permission
	if err := r.conn.Select(ctx, &out, `SELECT id_group, permission, add_deny FROM permissions WHERE id_group IN (`+ph+`) ORDER BY id_group, permission`, args...); err != nil {
		return nil, err
	}
	return out, nil
}

// MembersWithPermission lists administrators and members of any group that
// grants permission.
func (r *SQLiteRepo) MembersWithPermission(ctx context.Context, permission string) ([]int64, error) {
	var out []int64
	err := r.conn.Select(ctx, &out, `SELECT id_member FROM members
		WHERE id_group = 1 OR id_group IN (SELECT id_group FROM permissions WHERE permission = ? AND add_deny = 1 AND id_group > 0)
		UNION SELECT id_member FROM member_groups_extra
		WHERE id_group = 1 OR id_group IN (SELECT id_group FROM permissions WHERE permission = ? AND add_deny = 1 AND id_group > 0)
		ORDER BY 1`, permission, permission)
	if err != nil {
		return nil, err
	}
	return out, nil
}

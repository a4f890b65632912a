package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/StoryBB/StoryBB-sub005/pkg/models"
	"github.com/jmoiron/sqlx"
)

const memberColumns = `id_member, member_name, real_name, email_address, passwd, id_group, date_registered, posts, warning,
	personal_text, signature, avatar, lngfile, timezone, time_format, is_activated, current_character, last_login`

// CreateMember inserts the member and its main character, then points
// current_character at it.
func (r *SQLiteRepo) CreateMember(ctx context.Context, m *models.Member) (int64, int64, error) {
	if m == nil {
		return 0, 0, fmt.Errorf("member is nil")
	}
	if m.Registered == 0 {
		m.Registered = now()
	}
	if m.Timezone == "" {
		m.Timezone = "UTC"
	}

	var memberID, charID int64
	err := r.conn.WithTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `INSERT INTO members (member_name, real_name, email_address, passwd, id_group, date_registered,
			lngfile, timezone, time_format, is_activated) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			m.Name, m.RealName, m.Email, m.PasswordHash, m.PrimaryGroup, m.Registered, m.Language, m.Timezone, m.TimeFormat, boolInt(m.Activated))
		if err != nil {
			return fmt.Errorf("insert member: %w", err)
		}
		if memberID, err = res.LastInsertId(); err != nil {
			return err
		}
		res, err = tx.ExecContext(ctx, `INSERT INTO characters (id_member, character_name, date_created, is_main) VALUES (?, ?, ?, 1)`,
			memberID, m.DisplayName(), m.Registered)
		if err != nil {
			return fmt.Errorf("insert main character: %w", err)
		}
		if charID, err = res.LastInsertId(); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE members SET current_character = ? WHERE id_member = ?`, charID, memberID)
		return err
	})
	if err != nil {
		return 0, 0, err
	}
	m.ID = memberID
	m.CurrentCharacter = charID
	return memberID, charID, nil
}

func (r *SQLiteRepo) GetMember(ctx context.Context, id int64) (*models.Member, error) {
	var m models.Member
	if err := r.conn.Get(ctx, &m, `SELECT `+memberColumns+` FROM members WHERE id_member = ?`, id); err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

// GetMemberByLogin looks a member up by login name or email address.
func (r *SQLiteRepo) GetMemberByLogin(ctx context.Context, login string) (*models.Member, error) {
	var m models.Member
	err := r.conn.Get(ctx, &m, `SELECT `+memberColumns+` FROM members WHERE member_name = ? OR email_address = ? LIMIT 1`, login, login)
	if err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

// FindMembersByName matches login or display names, case-insensitively.
func (r *SQLiteRepo) FindMembersByName(ctx context.Context, names []string) ([]models.Member, error) {
	if len(names) == 0 {
		return nil, nil
	}
	lowered := make([]any, 0, len(names)*2)
	for _, n := range names {
		lowered = append(lowered, strings.ToLower(n))
	}
	lowered = append(lowered, lowered...)
	ph := strings.TrimSuffix(strings.Repeat("?,", len(names)), ",")
	var out []models.Member
	q := `SELECT ` + memberColumns + ` FROM members WHERE lower(member_name) IN (` + ph + `) OR lower(real_name) IN (` + ph + `) ORDER BY id_member`
	if err := r.conn.Select(ctx, &out, q, lowered...); err != nil {
		return nil, err
	}
	return out, nil
}

// MemberNameTaken checks login and display names of every other member.
func (r *SQLiteRepo) MemberNameTaken(ctx context.Context, name string, exceptID int64) (bool, error) {
	var n int
	err := r.conn.Get(ctx, &n, `SELECT COUNT(1) FROM members WHERE id_member != ? AND (lower(member_name) = lower(?) OR lower(real_name) = lower(?))`,
		exceptID, name, name)
	return n > 0, err
}

func (r *SQLiteRepo) EmailTaken(ctx context.Context, email string, exceptID int64) (bool, error) {
	var n int
	err := r.conn.Get(ctx, &n, `SELECT COUNT(1) FROM members WHERE id_member != ? AND lower(email_address) = lower(?)`, exceptID, email)
	return n > 0, err
}

func (r *SQLiteRepo) UpdateMember(ctx context.Context, m *models.Member) error {
	if m == nil {
		return fmt.Errorf("member is nil")
	}
	_, err := r.conn.Exec(ctx, `UPDATE members SET member_name = ?, real_name = ?, email_address = ?, passwd = ?, personal_text = ?,
		signature = ?, avatar = ?, lngfile = ?, timezone = ?, time_format = ?, is_activated = ? WHERE id_member = ?`,
		m.Name, m.RealName, m.Email, m.PasswordHash, m.PersonalText, m.Signature, m.Avatar, m.Language, m.Timezone, m.TimeFormat,
		boolInt(m.Activated), m.ID)
	return err
}

func (r *SQLiteRepo) UpdateLastLogin(ctx context.Context, id, at int64) error {
	_, err := r.conn.Exec(ctx, `UPDATE members SET last_login = ? WHERE id_member = ?`, at, id)
	return err
}

// MergeMembers folds the source account into the destination account.
// Non-main characters move across, posts of the source main character are
// reassigned to the destination main character, counters are summed and the
// source account is deleted.
func (r *SQLiteRepo) MergeMembers(ctx context.Context, sourceID, destID int64) error {
	return r.conn.WithTx(ctx, func(tx *sqlx.Tx) error {
		var srcMain, dstMain int64
		if err := tx.GetContext(ctx, &srcMain, `SELECT id_character FROM characters WHERE id_member = ? AND is_main = 1`, sourceID); err != nil {
			return fmt.Errorf("source main character: %w", err)
		}
		if err := tx.GetContext(ctx, &dstMain, `SELECT id_character FROM characters WHERE id_member = ? AND is_main = 1`, destID); err != nil {
			return fmt.Errorf("destination main character: %w", err)
		}

		stmts := []struct {
			q    string
			args []any
		}{
			{`UPDATE messages SET id_character = ? WHERE id_character = ?`, []any{dstMain, srcMain}},
			{`UPDATE messages SET id_member = ? WHERE id_member = ?`, []any{destID, sourceID}},
			{`UPDATE characters SET posts = posts + (SELECT posts FROM characters WHERE id_character = ?) WHERE id_character = ?`, []any{srcMain, dstMain}},
			{`DELETE FROM characters WHERE id_character = ?`, []any{srcMain}},
			{`UPDATE characters SET id_member = ? WHERE id_member = ?`, []any{destID, sourceID}},
			{`UPDATE character_sheet_versions SET id_member = ? WHERE id_member = ?`, []any{destID, sourceID}},
			{`UPDATE character_sheet_comments SET id_author = ? WHERE id_author = ?`, []any{destID, sourceID}},
			{`UPDATE members SET posts = posts + (SELECT posts FROM members WHERE id_member = ?) WHERE id_member = ?`, []any{sourceID, destID}},
			{`UPDATE log_comments SET id_recipient = ? WHERE id_recipient = ?`, []any{destID, sourceID}},
			{`INSERT OR IGNORE INTO member_groups_extra (id_member, id_group) SELECT ?, id_group FROM member_groups_extra WHERE id_member = ?`, []any{destID, sourceID}},
			{`UPDATE topics SET id_member_started = ? WHERE id_member_started = ?`, []any{destID, sourceID}},
			{`UPDATE log_subscribed SET id_member = ? WHERE id_member = ?`, []any{destID, sourceID}},
			{`DELETE FROM members WHERE id_member = ?`, []any{sourceID}},
		}
		for _, s := range stmts {
			if _, err := tx.ExecContext(ctx, s.q, s.args...); err != nil {
				return fmt.Errorf("merge members: %w", err)
			}
		}
		return nil
	})
}

// DecayWarnings lowers the warning level of members that have not been
// warned since quietSince.
func (r *SQLiteRepo) DecayWarnings(ctx context.Context, amount int, quietSince int64) (int64, error) {
	if amount <= 0 {
		return 0, nil
	}
	res, err := r.conn.Exec(ctx, `UPDATE members SET warning = MAX(0, warning - ?) WHERE warning > 0 AND id_member NOT IN
		(SELECT id_recipient FROM log_comments WHERE comment_type = 'warning' AND log_time >= ?)`, amount, quietSince)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

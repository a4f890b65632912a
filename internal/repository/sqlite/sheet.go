package sqlite

import (
	"context"
	"fmt"

	"github.com/StoryBB/StoryBB-sub005/pkg/models"
	"github.com/jmoiron/sqlx"
)

const sheetColumns = `id_version, id_character, id_member, sheet_text, created_time, approval_state, id_approver, approved_time`

func (r *SQLiteRepo) CreateSheetVersion(ctx context.Context, v *models.SheetVersion) (int64, error) {
	if v == nil {
		return 0, fmt.Errorf("sheet version is nil")
	}
	if v.Created == 0 {
		v.Created = now()
	}
	res, err := r.conn.Exec(ctx, `INSERT INTO character_sheet_versions (id_character, id_member, sheet_text, created_time, approval_state)
		VALUES (?, ?, ?, ?, ?)`, v.CharacterID, v.MemberID, v.Text, v.Created, v.State)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	v.ID = id
	return id, nil
}

func (r *SQLiteRepo) LatestSheetVersion(ctx context.Context, characterID int64) (*models.SheetVersion, error) {
	var v models.SheetVersion
	err := r.conn.Get(ctx, &v, `SELECT `+sheetColumns+` FROM character_sheet_versions WHERE id_character = ? ORDER BY id_version DESC LIMIT 1`, characterID)
	if err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &v, nil
}

func (r *SQLiteRepo) GetSheetVersion(ctx context.Context, id int64) (*models.SheetVersion, error) {
	var v models.SheetVersion
	if err := r.conn.Get(ctx, &v, `SELECT `+sheetColumns+` FROM character_sheet_versions WHERE id_version = ?`, id); err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &v, nil
}

func (r *SQLiteRepo) ListSheetVersions(ctx context.Context, characterID int64) ([]models.SheetVersion, error) {
	var out []models.SheetVersion
	if err := r.conn.Select(ctx, &out, `SELECT `+sheetColumns+` FROM character_sheet_versions WHERE id_character = ? ORDER BY id_version DESC`, characterID); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *SQLiteRepo) SetSheetState(ctx context.Context, versionID int64, state int) error {
	_, err := r.conn.Exec(ctx, `UPDATE character_sheet_versions SET approval_state = ? WHERE id_version = ?`, state, versionID)
	return err
}

// ApproveSheetVersion marks the version approved and makes it the
// character's current sheet.
func (r *SQLiteRepo) ApproveSheetVersion(ctx context.Context, v *models.SheetVersion, approverID, at int64) error {
	if v == nil {
		return fmt.Errorf("sheet version is nil")
	}
	return r.conn.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `UPDATE character_sheet_versions SET approval_state = ?, id_approver = ?, approved_time = ? WHERE id_version = ?`,
			models.SheetApproved, approverID, at, v.ID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `UPDATE characters SET char_sheet = ? WHERE id_character = ?`, v.ID, v.CharacterID)
		return err
	})
}

func (r *SQLiteRepo) AddSheetComment(ctx context.Context, c *models.SheetComment) (int64, error) {
	if c == nil {
		return 0, fmt.Errorf("sheet comment is nil")
	}
	if c.Posted == 0 {
		c.Posted = now()
	}
	res, err := r.conn.Exec(ctx, `INSERT INTO character_sheet_comments (id_character, id_author, time_posted, sheet_comment) VALUES (?, ?, ?, ?)`,
		c.CharacterID, c.AuthorID, c.Posted, c.Body)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *SQLiteRepo) ListSheetComments(ctx context.Context, characterID int64) ([]models.SheetComment, error) {
	var out []models.SheetComment
	err := r.conn.Select(ctx, &out, `SELECT c.id_comment, c.id_character, c.id_author, COALESCE(m.real_name, '') AS author_name,
		c.time_posted, c.sheet_comment FROM character_sheet_comments c LEFT JOIN members m ON m.id_member = c.id_author
		WHERE c.id_character = ? ORDER BY c.id_comment`, characterID)
	if err != nil {
		return nil, err
	}
	return out, nil
}

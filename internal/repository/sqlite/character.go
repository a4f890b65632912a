package sqlite

import (
	"context"
	"fmt"

	"github.com/StoryBB/StoryBB-sub005/pkg/models"
	"github.com/jmoiron/sqlx"
)

const characterColumns = `id_character, id_member, character_name, avatar, signature, age, posts, date_created, last_active, is_main, retired, char_sheet`

func (r *SQLiteRepo) CreateCharacter(ctx context.Context, c *models.Character) (int64, error) {
	if c == nil {
		return 0, fmt.Errorf("character is nil")
	}
	if c.Created == 0 {
		c.Created = now()
	}
	res, err := r.conn.Exec(ctx, `INSERT INTO characters (id_member, character_name, avatar, signature, age, date_created, is_main, retired)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, c.MemberID, c.Name, c.Avatar, c.Signature, c.Age, c.Created, boolInt(c.IsMain), boolInt(c.Retired))
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	c.ID = id
	return id, nil
}

func (r *SQLiteRepo) GetCharacter(ctx context.Context, id int64) (*models.Character, error) {
	var c models.Character
	if err := r.conn.Get(ctx, &c, `SELECT `+characterColumns+` FROM characters WHERE id_character = ?`, id); err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// ListCharacters returns the main character first, then active characters,
// then retired ones.
func (r *SQLiteRepo) ListCharacters(ctx context.Context, memberID int64) ([]models.Character, error) {
	var out []models.Character
	err := r.conn.Select(ctx, &out, `SELECT `+characterColumns+` FROM characters WHERE id_member = ?
		ORDER BY is_main DESC, retired ASC, lower(character_name)`, memberID)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *SQLiteRepo) MainCharacter(ctx context.Context, memberID int64) (*models.Character, error) {
	var c models.Character
	if err := r.conn.Get(ctx, &c, `SELECT `+characterColumns+` FROM characters WHERE id_member = ? AND is_main = 1`, memberID); err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

func (r *SQLiteRepo) CharacterNameTaken(ctx context.Context, name string, exceptID int64) (bool, error) {
	var n int
	err := r.conn.Get(ctx, &n, `SELECT COUNT(1) FROM characters WHERE id_character != ? AND lower(character_name) = lower(?)`, exceptID, name)
	return n > 0, err
}

func (r *SQLiteRepo) UpdateCharacter(ctx context.Context, c *models.Character) error {
	if c == nil {
		return fmt.Errorf("character is nil")
	}
	_, err := r.conn.Exec(ctx, `UPDATE characters SET character_name = ?, avatar = ?, signature = ?, age = ?, retired = ?, last_active = ?
		WHERE id_character = ?`, c.Name, c.Avatar, c.Signature, c.Age, boolInt(c.Retired), c.LastActive, c.ID)
	return err
}

// DeleteCharacter removes the character with its sheet history. Members
// currently playing it are switched back to their main character.
func (r *SQLiteRepo) DeleteCharacter(ctx context.Context, id int64) error {
	return r.conn.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `UPDATE members SET current_character = COALESCE(
			(SELECT c.id_character FROM characters c WHERE c.id_member = members.id_member AND c.is_main = 1), 0)
			WHERE current_character = ?`, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM character_sheet_comments WHERE id_character = ?`, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM character_sheet_versions WHERE id_character = ?`, id); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM characters WHERE id_character = ?`, id)
		return err
	})
}

func (r *SQLiteRepo) SetCurrentCharacter(ctx context.Context, memberID, characterID int64) error {
	return r.conn.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `UPDATE members SET current_character = ? WHERE id_member = ?`, characterID, memberID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `UPDATE characters SET last_active = ? WHERE id_character = ?`, now(), characterID)
		return err
	})
}

// MoveCharacter hands a character and its posts to another account.
func (r *SQLiteRepo) MoveCharacter(ctx context.Context, characterID, toMemberID int64) error {
	return r.conn.WithTx(ctx, func(tx *sqlx.Tx) error {
		var from int64
		var posts int
		row := tx.QueryRowxContext(ctx, `SELECT id_member, posts FROM characters WHERE id_character = ?`, characterID)
		if err := row.Scan(&from, &posts); err != nil {
			return fmt.Errorf("load character: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE members SET current_character = COALESCE(
			(SELECT c.id_character FROM characters c WHERE c.id_member = members.id_member AND c.is_main = 1), 0)
			WHERE current_character = ?`, characterID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE characters SET id_member = ? WHERE id_character = ?`, toMemberID, characterID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE messages SET id_member = ? WHERE id_character = ?`, toMemberID, characterID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE members SET posts = MAX(0, posts - ?) WHERE id_member = ?`, posts, from); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `UPDATE members SET posts = posts + ? WHERE id_member = ?`, posts, toMemberID)
		return err
	})
}

package sqlite

import (
	"context"

	"github.com/StoryBB/StoryBB-sub005/pkg/models"
	"github.com/jmoiron/sqlx"
)

func (r *SQLiteRepo) ListContacts(ctx context.Context, memberID int64, kind string) ([]models.MemberRef, error) {
	var out []models.MemberRef
	err := r.conn.Select(ctx, &out, `SELECT m.id_member, CASE WHEN m.real_name = '' THEN m.member_name ELSE m.real_name END AS real_name
		FROM member_contacts c JOIN members m ON m.id_member = c.id_contact
		WHERE c.id_member = ? AND c.contact_type = ? ORDER BY lower(real_name)`, memberID, kind)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *SQLiteRepo) AddContacts(ctx context.Context, memberID int64, kind string, contactIDs []int64) error {
	return r.conn.WithTx(ctx, func(tx *sqlx.Tx) error {
		for _, id := range contactIDs {
			if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO member_contacts (id_member, id_contact, contact_type) VALUES (?, ?, ?)`,
				memberID, id, kind); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *SQLiteRepo) RemoveContact(ctx context.Context, memberID int64, kind string, contactID int64) (bool, error) {
	res, err := r.conn.Exec(ctx, `DELETE FROM member_contacts WHERE id_member = ? AND id_contact = ? AND contact_type = ?`, memberID, contactID, kind)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *SQLiteRepo) IgnoredBoards(ctx context.Context, memberID int64) ([]int64, error) {
	var out []int64
	if err := r.conn.Select(ctx, &out, `SELECT id_board FROM member_ignore_boards WHERE id_member = ? ORDER BY id_board`, memberID); err != nil {
		return nil, err
	}
	return out, nil
}

// SetIgnoredBoards replaces the member's ignored board list.
func (r *SQLiteRepo) SetIgnoredBoards(ctx context.Context, memberID int64, boardIDs []int64) error {
	return r.conn.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM member_ignore_boards WHERE id_member = ?`, memberID); err != nil {
			return err
		}
		for _, id := range boardIDs {
			if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO member_ignore_boards (id_member, id_board) VALUES (?, ?)`, memberID, id); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *SQLiteRepo) WatchedTopics(ctx context.Context, memberID int64) ([]models.Topic, error) {
	var out []models.Topic
	err := r.conn.Select(ctx, &out, `SELECT `+topicColumnsT+` FROM log_notify n JOIN topics t ON t.id_topic = n.id_topic
		WHERE n.id_member = ? AND n.id_topic > 0 ORDER BY t.last_post_time DESC`, memberID)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *SQLiteRepo) WatchedBoards(ctx context.Context, memberID int64) ([]models.Board, error) {
	var out []models.Board
	err := r.conn.Select(ctx, &out, `SELECT `+boardColumnsB+` FROM log_notify n JOIN boards b ON b.id_board = n.id_board
		WHERE n.id_member = ? AND n.id_board > 0 AND n.id_topic = 0 ORDER BY b.board_order`, memberID)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *SQLiteRepo) SetTopicWatch(ctx context.Context, memberID, topicID int64, on bool) error {
	if on {
		_, err := r.conn.Exec(ctx, `INSERT OR IGNORE INTO log_notify (id_member, id_topic, id_board) VALUES (?, ?, 0)`, memberID, topicID)
		return err
	}
	_, err := r.conn.Exec(ctx, `DELETE FROM log_notify WHERE id_member = ? AND id_topic = ?`, memberID, topicID)
	return err
}

func (r *SQLiteRepo) SetBoardWatch(ctx context.Context, memberID, boardID int64, on bool) error {
	if on {
		_, err := r.conn.Exec(ctx, `INSERT OR IGNORE INTO log_notify (id_member, id_topic, id_board) VALUES (?, 0, ?)`, memberID, boardID)
		return err
	}
	_, err := r.conn.Exec(ctx, `DELETE FROM log_notify WHERE id_member = ? AND id_topic = 0 AND id_board = ?`, memberID, boardID)
	return err
}

// TopicWatchers lists members watching the topic or its board.
func (r *SQLiteRepo) TopicWatchers(ctx context.Context, topicID, boardID int64) ([]int64, error) {
	var out []int64
	err := r.conn.Select(ctx, &out, `SELECT DISTINCT id_member FROM log_notify
		WHERE (id_topic = ? AND id_topic != 0) OR (id_topic = 0 AND id_board = ?) ORDER BY id_member`, topicID, boardID)
	if err != nil {
		return nil, err
	}
	return out, nil
}

package sqlite

import (
	"context"
	"fmt"

	"github.com/StoryBB/StoryBB-sub005/pkg/models"
	"github.com/jmoiron/sqlx"
)

const (
	boardColumnsB = `b.id_board, b.id_cat, b.board_name, b.description, b.board_order, b.member_groups, b.in_character, b.num_topics, b.num_posts`
	topicApproved = `COALESCE((SELECT fm.approved FROM messages fm WHERE fm.id_msg = t.id_first_msg), 1)`
	topicColumnsT = `t.id_topic, t.id_board, t.subject, t.is_sticky, t.id_first_msg, t.id_last_msg, t.id_member_started, t.num_replies, t.last_post_time, ` + topicApproved + ` AS approved`
	messageCols   = `id_msg, id_topic, id_board, id_member, id_character, poster_name, poster_time, subject, body, approved`
)

func (r *SQLiteRepo) ListCategories(ctx context.Context) ([]models.Category, error) {
	var out []models.Category
	if err := r.conn.Select(ctx, &out, `SELECT id_cat, cat_name, cat_order FROM categories ORDER BY cat_order, id_cat`); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *SQLiteRepo) ListBoards(ctx context.Context) ([]models.Board, error) {
	var out []models.Board
	if err := r.conn.Select(ctx, &out, `SELECT `+boardColumnsB+` FROM boards b ORDER BY b.board_order, b.id_board`); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *SQLiteRepo) GetBoard(ctx context.Context, id int64) (*models.Board, error) {
	var b models.Board
	if err := r.conn.Get(ctx, &b, `SELECT `+boardColumnsB+` FROM boards b WHERE b.id_board = ?`, id); err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &b, nil
}

// visibleWhere filters on an approval expression: moderators see everything,
// members also see what they own.
func visibleWhere(approved, owner string, vis models.Visibility) (string, []any) {
	switch {
	case vis.Moderator:
		return `1 = 1`, nil
	case vis.MemberID > 0:
		return `(` + approved + ` = 1 OR ` + owner + ` = ?)`, []any{vis.MemberID}
	default:
		return approved + ` = 1`, nil
	}
}

// ListTopics returns sticky topics first, then by latest activity.
func (r *SQLiteRepo) ListTopics(ctx context.Context, boardID int64, vis models.Visibility, limit, offset int) ([]models.Topic, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	cond, args := visibleWhere(topicApproved, `t.id_member_started`, vis)
	args = append([]any{boardID}, args...)
	args = append(args, limit, offset)
	var out []models.Topic
	err := r.conn.Select(ctx, &out, `SELECT `+topicColumnsT+` FROM topics t WHERE t.id_board = ? AND `+cond+`
		ORDER BY t.is_sticky DESC, t.last_post_time DESC, t.id_topic DESC LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *SQLiteRepo) CountTopics(ctx context.Context, boardID int64, vis models.Visibility) (int, error) {
	cond, args := visibleWhere(topicApproved, `t.id_member_started`, vis)
	var n int
	err := r.conn.Get(ctx, &n, `SELECT COUNT(1) FROM topics t WHERE t.id_board = ? AND `+cond, append([]any{boardID}, args...)...)
	return n, err
}

func (r *SQLiteRepo) GetTopic(ctx context.Context, id int64) (*models.Topic, error) {
	var t models.Topic
	if err := r.conn.Get(ctx, &t, `SELECT `+topicColumnsT+` FROM topics t WHERE t.id_topic = ?`, id); err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

func (r *SQLiteRepo) ListMessages(ctx context.Context, topicID int64, vis models.Visibility, limit, offset int) ([]models.Message, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	cond, args := visibleWhere(`approved`, `id_member`, vis)
	args = append([]any{topicID}, args...)
	args = append(args, limit, offset)
	var out []models.Message
	err := r.conn.Select(ctx, &out, `SELECT `+messageCols+` FROM messages WHERE id_topic = ? AND `+cond+`
		ORDER BY id_msg LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *SQLiteRepo) CountMessages(ctx context.Context, topicID int64, vis models.Visibility) (int, error) {
	cond, args := visibleWhere(`approved`, `id_member`, vis)
	var n int
	err := r.conn.Get(ctx, &n, `SELECT COUNT(1) FROM messages WHERE id_topic = ? AND `+cond, append([]any{topicID}, args...)...)
	return n, err
}

func memberMessagesWhere(memberID, characterID int64, boardIDs []int64) (string, []any) {
	ph, boardArgs := inClause(boardIDs)
	where := ` WHERE id_member = ? AND approved = 1 AND id_board IN (` + ph + `)`
	args := append([]any{memberID}, boardArgs...)
	if characterID > 0 {
		where += ` AND id_character = ?`
		args = append(args, characterID)
	}
	return where, args
}

// MessagesByMember lists approved posts of a member, optionally limited to
// one character, within the given boards, newest first.
func (r *SQLiteRepo) MessagesByMember(ctx context.Context, memberID, characterID int64, boardIDs []int64, limit, offset int) ([]models.Message, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	where, args := memberMessagesWhere(memberID, characterID, boardIDs)
	args = append(args, limit, offset)
	var out []models.Message
	if err := r.conn.Select(ctx, &out, `SELECT `+messageCols+` FROM messages`+where+` ORDER BY id_msg DESC LIMIT ? OFFSET ?`, args...); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *SQLiteRepo) CountMessagesByMember(ctx context.Context, memberID, characterID int64, boardIDs []int64) (int, error) {
	where, args := memberMessagesWhere(memberID, characterID, boardIDs)
	var n int
	err := r.conn.Get(ctx, &n, `SELECT COUNT(1) FROM messages`+where, args...)
	return n, err
}

func (r *SQLiteRepo) CreatePost(ctx context.Context, msg *models.Message) (int64, int64, error) {
	if msg == nil {
		return 0, 0, fmt.Errorf("message is nil")
	}
	if msg.Time == 0 {
		msg.Time = now()
	}
	var topicID, msgID int64
	err := r.conn.WithTx(ctx, func(tx *sqlx.Tx) error {
		topicID = msg.TopicID
		newTopic := topicID == 0
		if newTopic {
			res, err := tx.ExecContext(ctx, `INSERT INTO topics (id_board, subject, id_member_started, last_post_time) VALUES (?, ?, ?, ?)`,
				msg.BoardID, msg.Subject, msg.MemberID, msg.Time)
			if err != nil {
				return fmt.Errorf("insert topic: %w", err)
			}
			if topicID, err = res.LastInsertId(); err != nil {
				return err
			}
		}
		res, err := tx.ExecContext(ctx, `INSERT INTO messages (id_topic, id_board, id_member, id_character, poster_name, poster_time, subject, body, approved)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, topicID, msg.BoardID, msg.MemberID, msg.CharacterID, msg.PosterName, msg.Time,
			msg.Subject, msg.Body, boolInt(msg.Approved))
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		if msgID, err = res.LastInsertId(); err != nil {
			return err
		}
		if !msg.Approved {
			if newTopic {
				_, err = tx.ExecContext(ctx, `UPDATE topics SET id_first_msg = ? WHERE id_topic = ?`, msgID, topicID)
			}
			return err
		}

		stmts := []struct {
			q    string
			args []any
		}{
			{`UPDATE topics SET id_last_msg = ?, last_post_time = ?, num_replies = num_replies + ? WHERE id_topic = ?`,
				[]any{msgID, msg.Time, 1 - boolInt(newTopic), topicID}},
			{`UPDATE boards SET num_posts = num_posts + 1, num_topics = num_topics + ? WHERE id_board = ?`, []any{boolInt(newTopic), msg.BoardID}},
			{`UPDATE members SET posts = posts + 1 WHERE id_member = ?`, []any{msg.MemberID}},
			{`UPDATE characters SET posts = posts + 1, last_active = ? WHERE id_character = ?`, []any{msg.Time, msg.CharacterID}},
		}
		if newTopic {
			stmts = append(stmts, struct {
				q    string
				args []any
			}{`UPDATE topics SET id_first_msg = ? WHERE id_topic = ?`, []any{msgID, topicID}})
		}
		for _, s := range stmts {
			if _, err := tx.ExecContext(ctx, s.q, s.args...); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	msg.ID = msgID
	msg.TopicID = topicID
	return topicID, msgID, nil
}

package sqlite

import (
	"context"
	"fmt"

	"github.com/StoryBB/StoryBB-sub005/pkg/models"
)

const insertMail = `INSERT INTO mail_queue (time_sent, recipient, subject, body, priority, sent) VALUES (?, ?, ?, ?, ?, 0)`

func mailDefaults(m *models.MailItem) {
	if m.Time == 0 {
		m.Time = now()
	}
	if m.Priority == 0 {
		m.Priority = 3
	}
}

func (r *SQLiteRepo) QueueMail(ctx context.Context, m *models.MailItem) (int64, error) {
	if m == nil {
		return 0, fmt.Errorf("mail item is nil")
	}
	mailDefaults(m)
	res, err := r.conn.Exec(ctx, insertMail, m.Time, m.Recipient, m.Subject, m.Body, m.Priority)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *SQLiteRepo) PendingMail(ctx context.Context, limit int) ([]models.MailItem, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []models.MailItem
	err := r.conn.Select(ctx, &out, `SELECT id_mail, time_sent, recipient, subject, body, priority, sent FROM mail_queue
		WHERE sent = 0 ORDER BY priority, id_mail LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *SQLiteRepo) MarkMailSent(ctx context.Context, id int64) error {
	_, err := r.conn.Exec(ctx, `UPDATE mail_queue SET sent = 1 WHERE id_mail = ?`, id)
	return err
}

package sqlite

import (
	"context"
	"fmt"

	"github.com/StoryBB/StoryBB-sub005/pkg/models"
	"github.com/jmoiron/sqlx"
)

const (
	subscriptionColumns = `id_subscribe, name, description, cost_cents, currency, length_days, id_group, active, repeatable`
	sublogColumns       = `id_sublog, id_subscribe, id_member, start_time, end_time, status, payments_pending, gateway, vendor_ref, reminder_sent`
)

func (r *SQLiteRepo) ListSubscriptions(ctx context.Context, activeOnly bool) ([]models.Subscription, error) {
	var out []models.Subscription
	err := r.conn.Select(ctx, &out, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE (? = 0 OR active = 1) ORDER BY cost_cents, id_subscribe`, boolInt(activeOnly))
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *SQLiteRepo) GetSubscription(ctx context.Context, id int64) (*models.Subscription, error) {
	var s models.Subscription
	if err := r.conn.Get(ctx, &s, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE id_subscribe = ?`, id); err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func (r *SQLiteRepo) CreateSubscription(ctx context.Context, s *models.Subscription) (int64, error) {
	if s == nil {
		return 0, fmt.Errorf("subscription is nil")
	}
	res, err := r.conn.Exec(ctx, `INSERT INTO subscriptions (name, description, cost_cents, currency, length_days, id_group, active, repeatable)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, s.Name, s.Description, s.CostCents, s.Currency, s.LengthDays, s.GroupID, boolInt(s.Active), boolInt(s.Repeatable))
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	s.ID = id
	return id, nil
}

func (r *SQLiteRepo) MemberSubscriptions(ctx context.Context, memberID int64) ([]models.SubscriptionLog, error) {
	var out []models.SubscriptionLog
	if err := r.conn.Select(ctx, &out, `SELECT `+sublogColumns+` FROM log_subscribed WHERE id_member = ? ORDER BY id_sublog DESC`, memberID); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *SQLiteRepo) GetSubscriptionLog(ctx context.Context, id int64) (*models.SubscriptionLog, error) {
	var l models.SubscriptionLog
	if err := r.conn.Get(ctx, &l, `SELECT `+sublogColumns+` FROM log_subscribed WHERE id_sublog = ?`, id); err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &l, nil
}

func (r *SQLiteRepo) CreateSubscriptionLog(ctx context.Context, l *models.SubscriptionLog) (int64, error) {
	if l == nil {
		return 0, fmt.Errorf("subscription log is nil")
	}
	res, err := r.conn.Exec(ctx, `INSERT INTO log_subscribed (id_subscribe, id_member, start_time, end_time, status, payments_pending, gateway)
		VALUES (?, ?, ?, ?, ?, ?, ?)`, l.SubscriptionID, l.MemberID, l.Start, l.End, l.Status, l.PaymentsPending, l.Gateway)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	l.ID = id
	return id, nil
}

func (r *SQLiteRepo) ActivateSubscription(ctx context.Context, logID, start, end int64, vendorRef string) error {
	return r.conn.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `UPDATE log_subscribed SET status = ?, start_time = ?, end_time = ?, payments_pending = 0,
			vendor_ref = ?, reminder_sent = 0 WHERE id_sublog = ?`, models.SubscriptionActive, start, end, vendorRef, logID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO member_groups_extra (id_member, id_group)
			SELECT l.id_member, s.id_group FROM log_subscribed l JOIN subscriptions s ON s.id_subscribe = l.id_subscribe
			WHERE l.id_sublog = ? AND s.id_group > 0`, logID)
		return err
	})
}

// EndSubscription deactivates the entry and removes the plan's group unless
// another active subscription of the member still grants it.
func (r *SQLiteRepo) EndSubscription(ctx context.Context, logID int64) error {
	return r.conn.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `UPDATE log_subscribed SET status = ? WHERE id_sublog = ?`, models.SubscriptionInactive, logID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM member_groups_extra WHERE (id_member, id_group) IN (
			SELECT l.id_member, s.id_group FROM log_subscribed l JOIN subscriptions s ON s.id_subscribe = l.id_subscribe
			WHERE l.id_sublog = ?)
			AND NOT EXISTS (SELECT 1 FROM log_subscribed l2 JOIN subscriptions s2 ON s2.id_subscribe = l2.id_subscribe
				WHERE l2.id_member = member_groups_extra.id_member AND s2.id_group = member_groups_extra.id_group AND l2.status = ?)`,
			logID, models.SubscriptionActive)
		return err
	})
}

func (r *SQLiteRepo) ExpiredSubscriptions(ctx context.Context, now int64) ([]models.SubscriptionLog, error) {
	var out []models.SubscriptionLog
	err := r.conn.Select(ctx, &out, `SELECT `+sublogColumns+` FROM log_subscribed WHERE status = ? AND end_time > 0 AND end_time <= ? ORDER BY id_sublog`,
		models.SubscriptionActive, now)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *SQLiteRepo) ExpiringSubscriptions(ctx context.Context, before int64) ([]models.SubscriptionLog, error) {
	var out []models.SubscriptionLog
	err := r.conn.Select(ctx, &out, `SELECT `+sublogColumns+` FROM log_subscribed WHERE status = ? AND reminder_sent = 0 AND end_time > 0 AND end_time <= ?
		ORDER BY id_sublog`, models.SubscriptionActive, before)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *SQLiteRepo) MarkReminderSent(ctx context.Context, logID int64) error {
	_, err := r.conn.Exec(ctx, `UPDATE log_subscribed SET reminder_sent = 1 WHERE id_sublog = ?`, logID)
	return err
}

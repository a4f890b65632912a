package tasks

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/StoryBB/StoryBB-sub005/internal/db"
	"github.com/jmoiron/sqlx"
)

// DefaultMaxAttempts applies when a task is queued without a limit.
const DefaultMaxAttempts = 5

// Queue stores tasks in adhoc_tasks.
// inputs: adhoc_tasks rows
// outputs: status updates, failed_tasks rows for exhausted tasks
// error modes: db errors, payload encoding errors
type Queue struct {
	db *db.DB
}

func NewQueue(d *db.DB) *Queue { return &Queue{db: d} }

var _ Enqueuer = (*Queue)(nil)

// QueueAdhoc queues a task to run as soon as a worker is free.
func (q *Queue) QueueAdhoc(ctx context.Context, typ string, payload any) (int64, error) {
	return q.Schedule(ctx, typ, payload, time.Now())
}

// Schedule queues a task to run at the given time.
func (q *Queue) Schedule(ctx context.Context, typ string, payload any, at time.Time) (int64, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("encode %s payload: %w", typ, err)
	}
	if payload == nil {
		b = []byte("{}")
	}
	return q.Enqueue(ctx, &Task{Type: typ, Payload: b, ScheduledAt: at})
}

// Enqueue inserts t and returns its id.
func (q *Queue) Enqueue(ctx context.Context, t *Task) (int64, error) {
	if t.MaxAttempts == 0 {
		t.MaxAttempts = DefaultMaxAttempts
	}
	if t.Priority == 0 {
		t.Priority = 100
	}
	if len(t.Payload) == 0 {
		t.Payload = json.RawMessage("{}")
	}
	if t.ScheduledAt.IsZero() {
		t.ScheduledAt = time.Now()
	}
	now := time.Now().UTC().Unix()
	res, err := q.db.Exec(ctx, `INSERT INTO adhoc_tasks(task_type, payload, status, attempts, max_attempts, priority, scheduled_at, created, updated)
		VALUES(?,?,?,?,?,?,?,?,?)`,
		t.Type, string(t.Payload), StatusQueued, t.Attempts, t.MaxAttempts, t.Priority, t.ScheduledAt.UTC().Unix(), now, now)
	if err != nil {
		return 0, fmt.Errorf("enqueue %s: %w", t.Type, err)
	}
	return res.LastInsertId()
}

// Pending reports whether a task of typ is waiting to run.
func (q *Queue) Pending(ctx context.Context, typ string) (bool, error) {
	var n int
	err := q.db.Get(ctx, &n, `SELECT COUNT(*) FROM adhoc_tasks WHERE task_type = ? AND status IN (?, ?)`, typ, StatusQueued, StatusRetry)
	if err != nil {
		return false, fmt.Errorf("count pending %s: %w", typ, err)
	}
	return n > 0, nil
}

type taskRow struct {
	ID          int64          `db:"id_task"`
	Type        string         `db:"task_type"`
	Payload     string         `db:"payload"`
	Status      string         `db:"status"`
	Attempts    int            `db:"attempts"`
	MaxAttempts int            `db:"max_attempts"`
	Priority    int            `db:"priority"`
	ScheduledAt int64          `db:"scheduled_at"`
	NextTryAt   sql.NullInt64  `db:"next_try_at"`
	LastError   sql.NullString `db:"last_error"`
	Created     int64          `db:"created"`
	Updated     int64          `db:"updated"`
}

func (r taskRow) task() *Task {
	t := &Task{
		ID:          r.ID,
		Type:        r.Type,
		Payload:     json.RawMessage(r.Payload),
		Status:      r.Status,
		Attempts:    r.Attempts,
		MaxAttempts: r.MaxAttempts,
		Priority:    r.Priority,
		ScheduledAt: time.Unix(r.ScheduledAt, 0),
		Created:     time.Unix(r.Created, 0),
		Updated:     time.Unix(r.Updated, 0),
		LastError:   r.LastError.String,
	}
	if r.NextTryAt.Valid {
		n := time.Unix(r.NextTryAt.Int64, 0)
		t.NextTryAt = &n
	}
	return t
}

// FetchNext claims the next due task, or returns nil when none is due.
func (q *Queue) FetchNext(ctx context.Context) (*Task, error) {
	var claimed *Task
	err := q.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		now := time.Now().UTC().Unix()
		var row taskRow
		err := tx.GetContext(ctx, &row, `SELECT id_task, task_type, payload, status, attempts, max_attempts, priority, scheduled_at, next_try_at, last_error, created, updated
			FROM adhoc_tasks
			WHERE status IN (?, ?) AND (next_try_at IS NULL OR next_try_at <= ?) AND scheduled_at <= ?
			ORDER BY priority ASC, scheduled_at ASC, id_task ASC LIMIT 1`,
			StatusQueued, StatusRetry, now, now)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE adhoc_tasks SET status = 'running', updated = ? WHERE id_task = ?`, now, row.ID); err != nil {
			return err
		}
		claimed = row.task()
		claimed.Status = "running"
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch next task: %w", err)
	}
	return claimed, nil
}

// Get returns a task by id, or nil.
func (q *Queue) Get(ctx context.Context, id int64) (*Task, error) {
	var row taskRow
	err := q.db.Get(ctx, &row, `SELECT id_task, task_type, payload, status, attempts, max_attempts, priority, scheduled_at, next_try_at, last_error, created, updated
		FROM adhoc_tasks WHERE id_task = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task %d: %w", id, err)
	}
	return row.task(), nil
}

// Update saves status, attempts, next_try_at and last_error.
func (q *Queue) Update(ctx context.Context, t *Task) error {
	var nextTry any
	if t.NextTryAt != nil {
		nextTry = t.NextTryAt.UTC().Unix()
	}
	payload := t.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	_, err := q.db.Exec(ctx, `UPDATE adhoc_tasks SET status = ?, attempts = ?, next_try_at = ?, last_error = ?, payload = ?, updated = ? WHERE id_task = ?`,
		t.Status, t.Attempts, nextTry, t.LastError, string(payload), time.Now().UTC().Unix(), t.ID)
	if err != nil {
		return fmt.Errorf("update task %d: %w", t.ID, err)
	}
	return nil
}

// Complete removes a finished task.
func (q *Queue) Complete(ctx context.Context, t *Task) error {
	if _, err := q.db.Exec(ctx, `DELETE FROM adhoc_tasks WHERE id_task = ?`, t.ID); err != nil {
		return fmt.Errorf("complete task %d: %w", t.ID, err)
	}
	return nil
}

// MoveToFailed copies t into failed_tasks and deletes it from the queue.
func (q *Queue) MoveToFailed(ctx context.Context, t *Task) error {
	return q.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO failed_tasks(id_task, task_type, payload, attempts, last_error, failed_at) VALUES(?,?,?,?,?,?)`,
			t.ID, t.Type, string(t.Payload), t.Attempts, t.LastError, time.Now().UTC().Unix()); err != nil {
			return fmt.Errorf("insert failed task: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM adhoc_tasks WHERE id_task = ?`, t.ID); err != nil {
			return fmt.Errorf("delete task: %w", err)
		}
		return nil
	})
}

// FailedCount returns the number of tasks in failed_tasks.
func (q *Queue) FailedCount(ctx context.Context) (int, error) {
	var n int
	if err := q.db.Get(ctx, &n, `SELECT COUNT(*) FROM failed_tasks`); err != nil {
		return 0, fmt.Errorf("count failed tasks: %w", err)
	}
	return n, nil
}

// Recover requeues tasks left running by a previous process.
func (q *Queue) Recover(ctx context.Context) (int64, error) {
	res, err := q.db.Exec(ctx, `UPDATE adhoc_tasks SET status = ?, updated = ? WHERE status = 'running'`, StatusRetry, time.Now().UTC().Unix())
	if err != nil {
		return 0, fmt.Errorf("recover running tasks: %w", err)
	}
	return res.RowsAffected()
}

// Package tasks is the background task queue. Controllers queue ad-hoc
// tasks (alerts, mail) and the runner executes them on a worker pool,
// retrying with backoff and moving exhausted tasks to failed_tasks.
package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Task types known to the forum.
const (
	TypeAlertDispatch       = "alert.dispatch"
	TypeMailFlush           = "mail.flush"
	TypeWarningsDecay       = "warnings.decay"
	TypeSubscriptionsExpire = "subscriptions.expire"
)

// Task statuses.
const (
	StatusQueued = "queued"
	StatusRetry  = "retry"
	StatusDone   = "done"
	StatusFailed = "failed"
)

// Task is one row of adhoc_tasks.
type Task struct {
	ID          int64           `json:"id"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	Status      string          `json:"status"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	Priority    int             `json:"priority"`
	ScheduledAt time.Time       `json:"scheduled_at"`
	NextTryAt   *time.Time      `json:"next_try_at,omitempty"`
	LastError   string          `json:"last_error,omitempty"`
	Created     time.Time       `json:"created"`
	Updated     time.Time       `json:"updated"`
}

// Decode unmarshals the payload into v.
func (t *Task) Decode(v any) error {
	if len(t.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(t.Payload, v)
}

// Handler processes a task.
type Handler func(ctx context.Context, t *Task) error

// ErrPermanent marks a handler failure that must not be retried.
var ErrPermanent = errors.New("permanent task failure")

const maxBackoff = 5 * time.Minute

// BackoffDuration returns the exponential backoff for attempt n.
func BackoffDuration(attempt int) time.Duration {
	if attempt <= 0 {
		return time.Second
	}
	d := time.Duration(1<<uint(min(attempt, 16))) * time.Second
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

// Enqueuer is what controllers use to queue work.
type Enqueuer interface {
	QueueAdhoc(ctx context.Context, typ string, payload any) (int64, error)
}

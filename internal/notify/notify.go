// Package notify turns forum events into member alerts. Controllers call
// Notifier, which queues an alert.dispatch task; the dispatcher expands it
// per recipient according to their preference bits.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/StoryBB/StoryBB-sub005/internal/tasks"
	"github.com/StoryBB/StoryBB-sub005/pkg/models"
)

var logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))

// SetLogger installs a logger for the notify package. Passing nil is a no-op.
func SetLogger(l *slog.Logger) {
	if l != nil {
		logger = l
	}
}

// Alert preference types.
const (
	PrefBuddyRequest       = "buddy_request"
	PrefGroupRequest       = "member_group_request"
	PrefGroupApproved      = "groupr_approved"
	PrefGroupRejected      = "groupr_rejected"
	PrefWarning            = "warn_any"
	PrefSheetSubmit        = "sheet_submit"
	PrefCharacterApproved  = "chr_approve"
	PrefCharacterRejected  = "chr_reject"
	PrefSubscriptionEnding = "paidsubs_expiring"
	PrefTopicReply         = "topic_reply"
)

// Types lists every alert preference in display order.
var Types = []string{
	PrefBuddyRequest,
	PrefGroupRequest,
	PrefGroupApproved,
	PrefGroupRejected,
	PrefWarning,
	PrefSheetSubmit,
	PrefCharacterApproved,
	PrefCharacterRejected,
	PrefSubscriptionEnding,
	PrefTopicReply,
}

// Forced types always produce an on-site alert.
var Forced = map[string]bool{
	PrefWarning: true,
}

// KnownType reports whether pref is a known alert preference.
func KnownType(pref string) bool {
	for _, t := range Types {
		if t == pref {
			return true
		}
	}
	return false
}

// Effective applies the forced bits to a stored preference value.
func Effective(pref string, value int) int {
	if Forced[pref] {
		value |= models.AlertSite
	}
	return value
}

// Event is the alert.dispatch payload.
type Event struct {
	Pref        string            `json:"pref"`
	Recipients  []int64           `json:"recipients"`
	StartedBy   int64             `json:"started_by"`
	ActorName   string            `json:"actor_name"`
	ContentType string            `json:"content_type"`
	ContentID   int64             `json:"content_id"`
	Action      string            `json:"action"`
	Extra       map[string]string `json:"extra,omitempty"`
}

// Notifier queues alert events.
type Notifier struct {
	queue tasks.Enqueuer
}

func NewNotifier(q tasks.Enqueuer) *Notifier {
	return &Notifier{queue: q}
}

// Notify queues ev for dispatch. Events without recipients are dropped.
func (n *Notifier) Notify(ctx context.Context, ev Event) error {
	if len(ev.Recipients) == 0 {
		return nil
	}
	if !KnownType(ev.Pref) {
		return fmt.Errorf("unknown alert type %q", ev.Pref)
	}
	if _, err := n.queue.QueueAdhoc(ctx, tasks.TypeAlertDispatch, ev); err != nil {
		return fmt.Errorf("queue %s alert: %w", ev.Pref, err)
	}
	logger.Debug("alert queued", slog.String("pref", ev.Pref), slog.Int("recipients", len(ev.Recipients)))
	return nil
}

package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"

	"github.com/StoryBB/StoryBB-sub005/internal/lang"
	"github.com/StoryBB/StoryBB-sub005/internal/tasks"
	"github.com/StoryBB/StoryBB-sub005/pkg/models"
)

// DispatchRepo is the storage the dispatcher needs.
type DispatchRepo interface {
	GetMember(ctx context.Context, id int64) (*models.Member, error)
	AlertPrefs(ctx context.Context, memberID int64) (map[string]int, error)
	ListContacts(ctx context.Context, memberID int64, kind string) ([]models.MemberRef, error)
	// DeliverAlert stores one recipient's alert and mail atomically.
	DeliverAlert(ctx context.Context, a *models.Alert, m *models.MailItem) error
}

// Dispatcher expands alert.dispatch tasks.
type Dispatcher struct {
	repo   DispatchRepo
	bundle *lang.Bundle
	queue  tasks.Enqueuer
}

func NewDispatcher(repo DispatchRepo, bundle *lang.Bundle, queue tasks.Enqueuer) *Dispatcher {
	return &Dispatcher{repo: repo, bundle: bundle, queue: queue}
}

// Handle is the alert.dispatch task handler. When a recipient fails, the
// task payload is narrowed to the recipients not yet served so a retry does
// not repeat earlier deliveries.
func (d *Dispatcher) Handle(ctx context.Context, t *tasks.Task) error {
	var ev Event
	if err := t.Decode(&ev); err != nil {
		return fmt.Errorf("%w: decode alert: %v", tasks.ErrPermanent, err)
	}
	extra := []byte("{}")
	if ev.Extra != nil {
		b, err := json.Marshal(ev.Extra)
		if err != nil {
			return fmt.Errorf("%w: encode alert extra: %v", tasks.ErrPermanent, err)
		}
		extra = b
	}
	mailed := 0
	for i, id := range ev.Recipients {
		sent, err := d.deliver(ctx, ev, id, string(extra))
		if err != nil {
			if perr := d.narrow(t, ev, ev.Recipients[i:]); perr != nil {
				logger.Error("narrow alert recipients", slog.Int64("task", t.ID), slog.Any("err", perr))
			}
			return err
		}
		mailed += sent
	}
	if mailed > 0 && d.queue != nil {
		// the recurring flush picks the mail up if this fails
		if _, err := d.queue.QueueAdhoc(ctx, tasks.TypeMailFlush, nil); err != nil {
			logger.Warn("queue mail flush", slog.Any("err", err))
		}
	}
	return nil
}

func (d *Dispatcher) narrow(t *tasks.Task, ev Event, remaining []int64) error {
	ev.Recipients = remaining
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	t.Payload = b
	return nil
}

// deliver writes the alert and/or mail for one recipient and returns the
// number of mails queued.
func (d *Dispatcher) deliver(ctx context.Context, ev Event, memberID int64, extra string) (int, error) {
	if memberID == ev.StartedBy && !Forced[ev.Pref] {
		return 0, nil
	}
	m, err := d.repo.GetMember(ctx, memberID)
	if err != nil {
		return 0, err
	}
	if m == nil {
		logger.Warn("alert recipient missing", slog.Int64("member", memberID), slog.String("pref", ev.Pref))
		return 0, nil
	}
	if ev.StartedBy != 0 && !Forced[ev.Pref] {
		ignored, err := d.repo.ListContacts(ctx, memberID, models.ContactIgnore)
		if err != nil {
			return 0, err
		}
		if slices.ContainsFunc(ignored, func(r models.MemberRef) bool { return r.ID == ev.StartedBy }) {
			return 0, nil
		}
	}
	prefs, err := d.repo.AlertPrefs(ctx, memberID)
	if err != nil {
		return 0, err
	}
	bits := Effective(ev.Pref, prefs[ev.Pref])

	var alert *models.Alert
	if bits&models.AlertSite != 0 {
		alert = &models.Alert{
			MemberID:    memberID,
			StartedBy:   ev.StartedBy,
			ContentType: ev.ContentType,
			ContentID:   ev.ContentID,
			Action:      ev.Action,
			Extra:       extra,
		}
	}
	var mail *models.MailItem
	if bits&models.AlertEmail != 0 && m.Email != "" && d.bundle != nil {
		locale := d.bundle.Normalize(m.Language)
		mail = &models.MailItem{
			Recipient: m.Email,
			Subject:   d.bundle.T(locale, "alert_mail_subject"),
			Body:      d.bundle.T(locale, "alert_"+ev.Pref, ev.ActorName),
		}
	}
	if err := d.repo.DeliverAlert(ctx, alert, mail); err != nil {
		return 0, fmt.Errorf("deliver alert: %w", err)
	}
	if mail == nil {
		return 0, nil
	}
	return 1, nil
}

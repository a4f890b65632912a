package profile

import (
	"context"
	"fmt"

	"github.com/StoryBB/StoryBB-sub005/internal/apperr"
	"github.com/StoryBB/StoryBB-sub005/internal/permissions"
	"github.com/StoryBB/StoryBB-sub005/pkg/models"
)

// AlertRow is an alert with its rendered text.
type AlertRow struct {
	models.Alert
	Text string `json:"text"`
}

// AlertsPage is the context of the alerts area.
type AlertsPage struct {
	Alerts []AlertRow `json:"alerts"`
	Unread int        `json:"unread"`
	Page   Page       `json:"pagination"`
}

// Alerts lists the member's alerts, newest first.
func (s *Service) Alerts(ctx context.Context, v *permissions.Viewer, memberID int64, page int) (*AlertsPage, error) {
	if _, err := s.loadMember(ctx, memberID); err != nil {
		return nil, err
	}
	if err := requireOwn(v, memberID); err != nil {
		return nil, err
	}
	total, err := s.store.CountAlerts(ctx, memberID, false)
	if err != nil {
		return nil, err
	}
	unread, err := s.store.CountAlerts(ctx, memberID, true)
	if err != nil {
		return nil, err
	}
	p := NewPage(page, total)
	alerts, err := s.store.ListAlerts(ctx, memberID, p.PerPage, p.Offset())
	if err != nil {
		return nil, err
	}
	out := &AlertsPage{Unread: unread, Page: p}
	names := map[int64]string{}
	for _, a := range alerts {
		actor, ok := names[a.StartedBy]
		if !ok && a.StartedBy > 0 {
			m, err := s.store.GetMember(ctx, a.StartedBy)
			if err != nil {
				return nil, err
			}
			if m != nil {
				actor = m.DisplayName()
			}
			names[a.StartedBy] = actor
		}
		out.Alerts = append(out.Alerts, AlertRow{Alert: a, Text: s.alertText(v.Language, a, actor)})
	}
	return out, nil
}

// alertText renders alert_<action> with the actor name.
func (s *Service) alertText(locale string, a models.Alert, actor string) string {
	if s.bundle == nil {
		return a.Action
	}
	return s.bundle.T(s.bundle.Normalize(locale), "alert_"+a.Action, actor)
}

// MarkAlertsRead marks the given alerts read; no ids marks every alert.
func (s *Service) MarkAlertsRead(ctx context.Context, v *permissions.Viewer, memberID int64, ids []int64) (int64, error) {
	if _, err := s.loadMember(ctx, memberID); err != nil {
		return 0, err
	}
	if err := requireOwn(v, memberID); err != nil {
		return 0, err
	}
	n, err := s.store.MarkAlertsRead(ctx, memberID, ids)
	if err != nil {
		return 0, fmt.Errorf("mark alerts read: %w", err)
	}
	return n, nil
}

// DeleteAlert removes one alert.
func (s *Service) DeleteAlert(ctx context.Context, v *permissions.Viewer, memberID, alertID int64) error {
	if _, err := s.loadMember(ctx, memberID); err != nil {
		return err
	}
	if err := requireOwn(v, memberID); err != nil {
		return err
	}
	ok, err := s.store.DeleteAlert(ctx, memberID, alertID)
	if err != nil {
		return fmt.Errorf("delete alert: %w", err)
	}
	if !ok {
		return apperr.NotFound("no_such_alert")
	}
	return nil
}

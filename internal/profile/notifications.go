package profile

import (
	"context"
	"fmt"

	"github.com/StoryBB/StoryBB-sub005/internal/apperr"
	"github.com/StoryBB/StoryBB-sub005/internal/notify"
	"github.com/StoryBB/StoryBB-sub005/internal/permissions"
	"github.com/StoryBB/StoryBB-sub005/pkg/models"
)

// AlertPref is one row of the notification preferences table.
type AlertPref struct {
	Type   string `json:"type"`
	Value  int    `json:"value"`
	Forced bool   `json:"forced"`
}

// NotificationsPage is the context of the notifications area.
type NotificationsPage struct {
	Prefs         []AlertPref    `json:"prefs"`
	WatchedTopics []models.Topic `json:"watched_topics"`
	WatchedBoards []models.Board `json:"watched_boards"`
}

// Notifications lists alert preferences and watched topics and boards.
func (s *Service) Notifications(ctx context.Context, v *permissions.Viewer, memberID int64) (*NotificationsPage, error) {
	if _, err := s.loadMember(ctx, memberID); err != nil {
		return nil, err
	}
	if err := v.RequireOwnAny(permissions.ProfileExtra, memberID); err != nil {
		return nil, err
	}
	prefs, err := s.store.AlertPrefs(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("load alert prefs: %w", err)
	}
	page := &NotificationsPage{}
	for _, t := range notify.Types {
		page.Prefs = append(page.Prefs, AlertPref{
			Type:   t,
			Value:  notify.Effective(t, prefs[t]),
			Forced: notify.Forced[t],
		})
	}
	if page.WatchedTopics, err = s.store.WatchedTopics(ctx, memberID); err != nil {
		return nil, err
	}
	if page.WatchedBoards, err = s.store.WatchedBoards(ctx, memberID); err != nil {
		return nil, err
	}
	return page, nil
}

// SaveNotifications stores alert preference bitmasks keyed by alert type.
func (s *Service) SaveNotifications(ctx context.Context, v *permissions.Viewer, memberID int64, prefs map[string]int) error {
	if _, err := s.loadMember(ctx, memberID); err != nil {
		return err
	}
	if err := v.RequireOwnAny(permissions.ProfileExtra, memberID); err != nil {
		return err
	}
	verr := &apperr.Validation{}
	for t, val := range prefs {
		field := "alert[" + t + "]"
		switch {
		case !notify.KnownType(t):
			verr.Add(field, "alert_type_unknown")
		case val < 0 || val > models.AlertSite|models.AlertEmail:
			verr.Add(field, "alert_value_invalid")
		case notify.Forced[t] && val&models.AlertSite == 0:
			verr.Add(field, "alert_forced")
		}
	}
	if err := verr.Err(); err != nil {
		return err
	}
	if len(prefs) == 0 {
		return nil
	}
	if err := s.store.SetAlertPrefs(ctx, memberID, prefs); err != nil {
		return fmt.Errorf("save alert prefs: %w", err)
	}
	return nil
}

// UnwatchInput lists topics and boards to stop watching.
type UnwatchInput struct {
	Topics []int64 `json:"topics"`
	Boards []int64 `json:"boards"`
}

// Unwatch removes watched topics and boards.
func (s *Service) Unwatch(ctx context.Context, v *permissions.Viewer, memberID int64, in UnwatchInput) error {
	if _, err := s.loadMember(ctx, memberID); err != nil {
		return err
	}
	if err := v.RequireOwnAny(permissions.ProfileExtra, memberID); err != nil {
		return err
	}
	for _, id := range in.Topics {
		if err := s.store.SetTopicWatch(ctx, memberID, id, false); err != nil {
			return fmt.Errorf("unwatch topic %d: %w", id, err)
		}
	}
	for _, id := range in.Boards {
		if err := s.store.SetBoardWatch(ctx, memberID, id, false); err != nil {
			return fmt.Errorf("unwatch board %d: %w", id, err)
		}
	}
	return nil
}

package profile

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"unicode/utf8"

	"github.com/StoryBB/StoryBB-sub005/internal/apperr"
	"github.com/StoryBB/StoryBB-sub005/internal/notify"
	"github.com/StoryBB/StoryBB-sub005/internal/permissions"
	"github.com/StoryBB/StoryBB-sub005/internal/settings"
	"github.com/StoryBB/StoryBB-sub005/internal/tasks"
	"github.com/StoryBB/StoryBB-sub005/pkg/models"
)

// Warning limits.
const (
	MaxWarningLevel  = 100
	MaxWarningReason = 255
	warningWindow    = 24 * 60 * 60
)

// WarningBounds is the range a moderator may set a member's level to.
type WarningBounds struct {
	Current int    `json:"current"`
	Min     int    `json:"min"`
	Max     int    `json:"max"`
	Status  string `json:"status"`
}

// warningBounds limits one issuer to cap points per member per day.
func warningBounds(current, applied int, wc settings.WarningConfig, admin bool) (int, int) {
	if admin || wc.Cap == 0 {
		return 0, MaxWarningLevel
	}
	lo := max(0, current-applied-wc.Cap)
	hi := min(MaxWarningLevel, current-applied+wc.Cap)
	return lo, hi
}

func (s *Service) warningSetup(ctx context.Context, v *permissions.Viewer, memberID int64) (*models.Member, settings.WarningConfig, WarningBounds, error) {
	var wc settings.WarningConfig
	if err := v.Require(permissions.IssueWarning); err != nil {
		return nil, wc, WarningBounds{}, err
	}
	m, err := s.loadMember(ctx, memberID)
	if err != nil {
		return nil, wc, WarningBounds{}, err
	}
	if v.MemberID == memberID {
		return nil, wc, WarningBounds{}, apperr.Forbidden("cannot_warn_self")
	}
	values, err := s.settings.Load(ctx)
	if err != nil {
		return nil, wc, WarningBounds{}, err
	}
	wc = values.Warning()
	if !wc.Enabled {
		return nil, wc, WarningBounds{}, apperr.Forbidden("feature_disabled")
	}
	applied, err := s.store.WarningPointsSince(ctx, v.MemberID, memberID, s.now()-warningWindow)
	if err != nil {
		return nil, wc, WarningBounds{}, fmt.Errorf("load applied warning points: %w", err)
	}
	lo, hi := warningBounds(m.Warning, applied, wc, v.IsAdmin())
	return m, wc, WarningBounds{Current: m.Warning, Min: lo, Max: hi, Status: wc.Status(m.Warning)}, nil
}

// WarningForm shows the issue warning form.
func (s *Service) WarningForm(ctx context.Context, v *permissions.Viewer, memberID int64) (*WarningBounds, error) {
	_, _, b, err := s.warningSetup(ctx, v, memberID)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// WarningInput is the issue warning form.
type WarningInput struct {
	Level   int    `json:"warning_level"`
	Reason  string `json:"warn_reason"`
	Notify  bool   `json:"warn_notify"`
	Subject string `json:"warn_sub"`
	Body    string `json:"warn_body"`
}

// WarningResult reports the level after a warning.
type WarningResult struct {
	Previous int    `json:"previous"`
	Level    int    `json:"level"`
	Status   string `json:"status"`
}

// IssueWarning sets a member's warning level within the issuer's bounds.
func (s *Service) IssueWarning(ctx context.Context, v *permissions.Viewer, memberID int64, in WarningInput) (*WarningResult, error) {
	m, wc, b, err := s.warningSetup(ctx, v, memberID)
	if err != nil {
		return nil, err
	}
	level := min(max(in.Level, b.Min), b.Max)
	reason := Sanitize(in.Reason)
	subject, body := Sanitize(in.Subject), Sanitize(in.Body)

	verr := &apperr.Validation{}
	switch {
	case reason == "":
		verr.Add("warn_reason", "warning_reason_blank")
	case utf8.RuneCountInString(reason) > MaxWarningReason:
		verr.Add("warn_reason", "field_too_long", MaxWarningReason)
	}
	if in.Notify && (subject == "" || body == "") {
		verr.Add("warn_body", "warning_notify_blank")
	}
	if err := verr.Err(); err != nil {
		return nil, err
	}

	w := &models.Warning{
		IssuerID:    v.MemberID,
		IssuerName:  v.Name,
		RecipientID: memberID,
		Time:        s.now(),
		Counter:     level - m.Warning,
		Reason:      reason,
	}
	if _, err := s.store.AddWarning(ctx, w, level); err != nil {
		return nil, fmt.Errorf("save warning: %w", err)
	}
	extra := map[string]any{"level": level, "previous": m.Warning, "reason": reason}
	if err := s.logAction(ctx, models.LogModeration, v, memberID, "warning", extra); err != nil {
		return nil, err
	}

	s.notify(ctx, notify.Event{
		Pref:        notify.PrefWarning,
		Recipients:  []int64{memberID},
		StartedBy:   v.MemberID,
		ActorName:   v.Name,
		ContentType: "member",
		ContentID:   memberID,
		Action:      notify.PrefWarning,
		Extra:       map[string]string{"level": strconv.Itoa(level)},
	})
	if in.Notify && m.Email != "" {
		mail := &models.MailItem{Time: s.now(), Recipient: m.Email, Subject: subject, Body: body, Priority: 1}
		if _, err := s.store.QueueMail(ctx, mail); err != nil {
			return nil, fmt.Errorf("queue warning mail: %w", err)
		}
	}

	logger.Info("warning issued",
		slog.Int64("member", memberID),
		slog.Int64("issuer", v.MemberID),
		slog.Int("level", level))
	return &WarningResult{Previous: m.Warning, Level: level, Status: wc.Status(level)}, nil
}

// WarningsPage is the context of the view_warnings area.
type WarningsPage struct {
	Level   int              `json:"level"`
	Status  string           `json:"status"`
	Entries []models.Warning `json:"entries"`
	Page    Page             `json:"pagination"`
}

// ViewWarnings lists a member's warning history.
func (s *Service) ViewWarnings(ctx context.Context, v *permissions.Viewer, memberID int64, page int) (*WarningsPage, error) {
	m, err := s.loadMember(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if err := v.RequireOwnAny(permissions.ViewWarning, memberID); err != nil {
		return nil, err
	}
	values, err := s.settings.Load(ctx)
	if err != nil {
		return nil, err
	}
	total, err := s.store.CountWarnings(ctx, memberID)
	if err != nil {
		return nil, err
	}
	p := NewPage(page, total)
	entries, err := s.store.ListWarnings(ctx, memberID, p.PerPage, p.Offset())
	if err != nil {
		return nil, err
	}
	return &WarningsPage{Level: m.Warning, Status: values.Warning().Status(m.Warning), Entries: entries, Page: p}, nil
}

// DecayWarnings handles the warnings.decay task: members not warned in the
// last day lose the configured number of points.
func (s *Service) DecayWarnings(ctx context.Context, _ *tasks.Task) error {
	values, err := s.settings.Load(ctx)
	if err != nil {
		return err
	}
	wc := values.Warning()
	if !wc.Enabled || wc.Decay <= 0 {
		return nil
	}
	n, err := s.store.DecayWarnings(ctx, wc.Decay, s.now()-warningWindow)
	if err != nil {
		return fmt.Errorf("decay warnings: %w", err)
	}
	if n > 0 {
		logger.Info("warnings decayed", slog.Int64("members", n), slog.Int("points", wc.Decay))
	}
	return nil
}

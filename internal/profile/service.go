// Package profile implements the member profile areas: each operation checks
// the viewer's permissions, loads rows through the repository, and returns a
// page context or validates and saves a form.
package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
	"unicode"

	"github.com/StoryBB/StoryBB-sub005/internal/apperr"
	"github.com/StoryBB/StoryBB-sub005/internal/customfields"
	"github.com/StoryBB/StoryBB-sub005/internal/lang"
	"github.com/StoryBB/StoryBB-sub005/internal/notify"
	"github.com/StoryBB/StoryBB-sub005/internal/payments"
	"github.com/StoryBB/StoryBB-sub005/internal/permissions"
	"github.com/StoryBB/StoryBB-sub005/internal/settings"
	"github.com/StoryBB/StoryBB-sub005/pkg/models"
	"github.com/StoryBB/StoryBB-sub005/pkg/repository"
)

var logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))

// SetLogger installs a logger for the profile package. Passing nil is a no-op.
func SetLogger(l *slog.Logger) {
	if l != nil {
		logger = l
	}
}

// PerPage is the page size of paginated areas.
const PerPage = 20

// Deps are the collaborators of the profile service.
type Deps struct {
	Store    repository.Store
	Settings *settings.Store
	Notifier *notify.Notifier
	Fields   *customfields.Validator
	Payments *payments.Registry
	Bundle   *lang.Bundle
}

// Service serves every profile area.
type Service struct {
	store    repository.Store
	settings *settings.Store
	notifier *notify.Notifier
	fields   *customfields.Validator
	payments *payments.Registry
	bundle   *lang.Bundle
	now      func() int64
}

func unixNow() int64 { return time.Now().UTC().Unix() }

func NewService(d Deps) *Service {
	return &Service{
		store:    d.Store,
		settings: d.Settings,
		notifier: d.Notifier,
		fields:   d.Fields,
		payments: d.Payments,
		bundle:   d.Bundle,
		now:      unixNow,
	}
}

// loadMember returns the target member or a not_a_user error.
func (s *Service) loadMember(ctx context.Context, id int64) (*models.Member, error) {
	if id <= 0 {
		return nil, apperr.NotFound("not_a_user")
	}
	m, err := s.store.GetMember(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load member %d: %w", id, err)
	}
	if m == nil {
		return nil, apperr.NotFound("not_a_user")
	}
	return m, nil
}

// MemberContext is everything a profile page shows about its member.
type MemberContext struct {
	Member       *models.Member     `json:"member"`
	PrimaryGroup *models.Group      `json:"primary_group,omitempty"`
	Groups       []models.Group     `json:"groups"`
	Characters   []models.Character `json:"characters"`
	FieldValues  map[int64]string   `json:"-"`
}

// LoadMemberContext loads a member with groups, characters and custom field
// values. It returns (nil, nil) when the member does not exist.
func (s *Service) LoadMemberContext(ctx context.Context, id int64) (*MemberContext, error) {
	m, err := s.store.GetMember(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load member %d: %w", id, err)
	}
	if m == nil {
		return nil, nil
	}
	mc := &MemberContext{Member: m}
	if m.PrimaryGroup != models.GroupRegular {
		if mc.PrimaryGroup, err = s.store.GetGroup(ctx, m.PrimaryGroup); err != nil {
			return nil, fmt.Errorf("load primary group: %w", err)
		}
	}
	extra, err := s.store.AdditionalGroups(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load additional groups: %w", err)
	}
	for _, gid := range extra {
		g, err := s.store.GetGroup(ctx, gid)
		if err != nil {
			return nil, fmt.Errorf("load group %d: %w", gid, err)
		}
		if g != nil {
			mc.Groups = append(mc.Groups, *g)
		}
	}
	if mc.Characters, err = s.store.ListCharacters(ctx, id); err != nil {
		return nil, fmt.Errorf("load characters: %w", err)
	}
	if mc.FieldValues, err = s.store.FieldValues(ctx, id); err != nil {
		return nil, fmt.Errorf("load custom field values: %w", err)
	}
	return mc, nil
}

// Sanitize trims s, normalises line endings and strips control characters
// other than newline and tab.
func Sanitize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

// Change is one modified profile field.
type Change struct {
	Field    string `json:"field"`
	Previous string `json:"previous"`
	New      string `json:"new"`
}

// diff appends a change when the values differ.
func diff(changes []Change, field, previous, next string) []Change {
	if previous == next {
		return changes
	}
	return append(changes, Change{Field: field, Previous: previous, New: next})
}

// LogChanges writes one profile log row per changed field.
func (s *Service) LogChanges(ctx context.Context, v *permissions.Viewer, targetID int64, changes []Change) error {
	for _, c := range changes {
		extra := map[string]any{"previous": c.Previous, "new": c.New, "applicator": v.MemberID}
		if err := s.logAction(ctx, models.LogProfile, v, targetID, c.Field, extra); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) logAction(ctx context.Context, log int, v *permissions.Viewer, targetID int64, action string, extra map[string]any) error {
	b, err := json.Marshal(extra)
	if err != nil {
		return err
	}
	entry := &models.ActionLog{
		Log:        log,
		Time:       s.now(),
		MemberID:   v.MemberID,
		IP:         v.IP,
		Action:     action,
		AffectedID: targetID,
		Extra:      string(b),
	}
	if _, err := s.store.LogAction(ctx, entry); err != nil {
		return fmt.Errorf("log %s: %w", action, err)
	}
	return nil
}

// notify queues an alert; failures are logged and do not fail the request.
func (s *Service) notify(ctx context.Context, ev notify.Event) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, ev); err != nil {
		logger.Error("queue alert failed", slog.String("pref", ev.Pref), slog.Any("err", err))
	}
}

// Page describes one page of a paginated list.
type Page struct {
	Number  int `json:"page"`
	PerPage int `json:"per_page"`
	Total   int `json:"total"`
	Pages   int `json:"pages"`
}

// NewPage clamps number into the available range.
func NewPage(number, total int) Page {
	pages := (total + PerPage - 1) / PerPage
	if pages < 1 {
		pages = 1
	}
	if number < 1 {
		number = 1
	}
	if number > pages {
		number = pages
	}
	return Page{Number: number, PerPage: PerPage, Total: total, Pages: pages}
}

func (p Page) Offset() int { return (p.Number - 1) * p.PerPage }

// requireOwn allows only the member themselves.
func requireOwn(v *permissions.Viewer, memberID int64) error {
	if err := v.RequireMember(); err != nil {
		return err
	}
	if v.MemberID != memberID {
		return apperr.Forbidden("no_access")
	}
	return nil
}

// requireOwnOr allows the member themselves or holders of permission.
func requireOwnOr(v *permissions.Viewer, memberID int64, permission string) error {
	if err := v.RequireMember(); err != nil {
		return err
	}
	if v.MemberID == memberID || v.Can(permission) {
		return nil
	}
	return apperr.Forbidden("no_access")
}

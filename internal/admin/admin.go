// Package admin holds the forum administration operations: settings, custom
// profile field definitions and paid subscription plans. Every operation
// requires admin_forum and is recorded in the admin log.
package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/StoryBB/StoryBB-sub005/internal/apperr"
	"github.com/StoryBB/StoryBB-sub005/internal/customfields"
	"github.com/StoryBB/StoryBB-sub005/internal/permissions"
	"github.com/StoryBB/StoryBB-sub005/internal/settings"
	"github.com/StoryBB/StoryBB-sub005/pkg/models"
	"github.com/StoryBB/StoryBB-sub005/pkg/repository"
)

var logger = slog.Default()

// SetLogger replaces the package logger; nil is ignored.
func SetLogger(l *slog.Logger) {
	if l != nil {
		logger = l
	}
}

// MaxPlanName bounds a subscription plan name.
const MaxPlanName = 60

// Service runs the administration operations.
type Service struct {
	store    repository.Store
	settings *settings.Store
	fields   *customfields.Validator
	now      func() int64
}

func NewService(store repository.Store, s *settings.Store, fields *customfields.Validator) *Service {
	return &Service{
		store:    store,
		settings: s,
		fields:   fields,
		now:      func() int64 { return time.Now().UTC().Unix() },
	}
}

func (s *Service) log(ctx context.Context, v *permissions.Viewer, action string, extra map[string]any) error {
	b, err := json.Marshal(extra)
	if err != nil {
		return err
	}
	entry := &models.ActionLog{Log: models.LogAdmin, Time: s.now(), MemberID: v.MemberID, IP: v.IP, Action: action, Extra: string(b)}
	if _, err := s.store.LogAction(ctx, entry); err != nil {
		return fmt.Errorf("log %s: %w", action, err)
	}
	return nil
}

// Setting is one row of the settings page.
type Setting struct {
	Key     string `json:"key"`
	Value   string `json:"value"`
	Default string `json:"default"`
}

// Settings lists every known setting with its current value.
func (s *Service) Settings(ctx context.Context, v *permissions.Viewer) ([]Setting, error) {
	if err := v.Require(permissions.AdminForum); err != nil {
		return nil, err
	}
	values, err := s.settings.Load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Setting, 0, len(settings.Definitions))
	for _, d := range settings.Definitions {
		out = append(out, Setting{Key: d.Key, Value: values.String(d.Key), Default: d.Default})
	}
	return out, nil
}

// SaveSettings validates and stores submitted settings, logging each change.
func (s *Service) SaveSettings(ctx context.Context, v *permissions.Viewer, values map[string]string) ([]settings.Change, error) {
	if err := v.Require(permissions.AdminForum); err != nil {
		return nil, err
	}
	changes, err := s.settings.Update(ctx, values)
	if err != nil {
		return nil, err
	}
	for _, c := range changes {
		if err := s.log(ctx, v, "settings", map[string]any{"key": c.Key, "previous": c.Previous, "new": c.New}); err != nil {
			return nil, err
		}
	}
	if len(changes) > 0 {
		logger.Info("settings updated", slog.Int("changes", len(changes)), slog.Int64("member", v.MemberID))
	}
	return changes, nil
}

// CustomFields lists every custom field definition, active or not.
func (s *Service) CustomFields(ctx context.Context, v *permissions.Viewer) ([]models.CustomField, error) {
	if err := v.Require(permissions.AdminForum); err != nil {
		return nil, err
	}
	return s.store.ListCustomFields(ctx, false)
}

// CreateCustomField stores a new field definition and recompiles the
// validation schema.
func (s *Service) CreateCustomField(ctx context.Context, v *permissions.Viewer, f models.CustomField) (*models.CustomField, error) {
	if err := v.Require(permissions.AdminForum); err != nil {
		return nil, err
	}
	f.ColName = strings.TrimSpace(f.ColName)
	f.Name = strings.TrimSpace(f.Name)
	if err := customfields.CheckDefinition(f); err != nil {
		return nil, err
	}
	existing, err := s.store.ListCustomFields(ctx, false)
	if err != nil {
		return nil, err
	}
	for _, e := range existing {
		if e.ColName == f.ColName {
			return nil, apperr.Invalid("col_name", "custom_field_col_taken")
		}
	}
	if f.Order == 0 {
		f.Order = len(existing) + 1
	}
	if _, err := s.store.CreateCustomField(ctx, &f); err != nil {
		return nil, fmt.Errorf("create custom field: %w", err)
	}
	if err := s.reloadFields(ctx); err != nil {
		return nil, err
	}
	if err := s.log(ctx, v, "custom_field_create", map[string]any{"field": f.ID, "col_name": f.ColName}); err != nil {
		return nil, err
	}
	return &f, nil
}

// DeleteCustomField removes a definition together with its stored values.
func (s *Service) DeleteCustomField(ctx context.Context, v *permissions.Viewer, id int64) error {
	if err := v.Require(permissions.AdminForum); err != nil {
		return err
	}
	f, err := s.store.GetCustomField(ctx, id)
	if err != nil {
		return err
	}
	if f == nil {
		return apperr.NotFound("custom_field_not_found")
	}
	if err := s.store.DeleteCustomField(ctx, id); err != nil {
		return fmt.Errorf("delete custom field: %w", err)
	}
	if err := s.reloadFields(ctx); err != nil {
		return err
	}
	return s.log(ctx, v, "custom_field_delete", map[string]any{"field": id, "col_name": f.ColName})
}

func (s *Service) reloadFields(ctx context.Context) error {
	if s.fields == nil {
		return nil
	}
	if err := s.fields.Reload(ctx); err != nil {
		return fmt.Errorf("reload custom fields: %w", err)
	}
	return nil
}

// Plans lists every subscription plan.
func (s *Service) Plans(ctx context.Context, v *permissions.Viewer) ([]models.Subscription, error) {
	if err := v.Require(permissions.AdminForum); err != nil {
		return nil, err
	}
	return s.store.ListSubscriptions(ctx, false)
}

// CreatePlan validates and stores a subscription plan. An empty currency
// takes the paid_currency setting.
func (s *Service) CreatePlan(ctx context.Context, v *permissions.Viewer, p models.Subscription) (*models.Subscription, error) {
	if err := v.Require(permissions.AdminForum); err != nil {
		return nil, err
	}
	p.Name = strings.TrimSpace(p.Name)
	p.Currency = strings.ToLower(strings.TrimSpace(p.Currency))
	if p.Currency == "" {
		values, err := s.settings.Load(ctx)
		if err != nil {
			return nil, err
		}
		p.Currency = values.String("paid_currency")
	}

	verr := &apperr.Validation{}
	switch {
	case p.Name == "":
		verr.Add("name", "field_required")
	case utf8.RuneCountInString(p.Name) > MaxPlanName:
		verr.Add("name", "field_too_long", MaxPlanName)
	}
	if p.CostCents < 0 {
		verr.Add("cost_cents", "value_out_of_range")
	}
	if p.LengthDays < 0 {
		verr.Add("length_days", "value_out_of_range")
	}
	if len(p.Currency) != 3 {
		verr.Add("currency", "currency_invalid")
	}
	if p.GroupID != 0 {
		g, err := s.store.GetGroup(ctx, p.GroupID)
		if err != nil {
			return nil, err
		}
		if g == nil || g.ID == models.GroupAdministrator {
			verr.Add("group_id", "no_such_group")
		}
	}
	if err := verr.Err(); err != nil {
		return nil, err
	}
	if _, err := s.store.CreateSubscription(ctx, &p); err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}
	if err := s.log(ctx, v, "subscription_create", map[string]any{"subscription": p.ID, "name": p.Name}); err != nil {
		return nil, err
	}
	return &p, nil
}

// AdminLog pages through the admin or moderation log.
func (s *Service) AdminLog(ctx context.Context, v *permissions.Viewer, logType int, limit, offset int) ([]models.ActionLog, int, error) {
	if err := v.Require(permissions.AdminForum); err != nil {
		return nil, 0, err
	}
	if logType != models.LogAdmin && logType != models.LogModeration {
		return nil, 0, apperr.BadRequest("invalid_request")
	}
	total, err := s.store.CountActions(ctx, logType, 0)
	if err != nil {
		return nil, 0, err
	}
	rows, err := s.store.ListActions(ctx, logType, 0, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

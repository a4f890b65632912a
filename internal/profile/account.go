package profile

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	// timezones must resolve on hosts without a zoneinfo database
	_ "time/tzdata"

	"github.com/StoryBB/StoryBB-sub005/internal/apperr"
	"github.com/StoryBB/StoryBB-sub005/internal/auth"
	"github.com/StoryBB/StoryBB-sub005/internal/permissions"
	"github.com/StoryBB/StoryBB-sub005/pkg/models"
)

// Field limits of the account and forum profile forms.
const (
	MaxRealName     = 60
	MaxPersonalText = 50
	MaxTimeFormat   = 80
)

// AccountPage is the context of the account area.
type AccountPage struct {
	Member        *models.Member `json:"member"`
	CanChangeName bool           `json:"can_change_name"`
	NeedsPassword bool           `json:"needs_password"`
}

// Account shows the account settings form.
func (s *Service) Account(ctx context.Context, v *permissions.Viewer, memberID int64) (*AccountPage, error) {
	m, err := s.loadMember(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if err := v.RequireOwnAny(permissions.ProfileIdentity, memberID); err != nil {
		return nil, err
	}
	return &AccountPage{
		Member:        m,
		CanChangeName: v.Can(permissions.AdminForum),
		NeedsPassword: v.MemberID == memberID,
	}, nil
}

// AccountInput is the account form. Nil fields are left unchanged and an
// empty Password keeps the current password.
type AccountInput struct {
	MemberName  *string `json:"member_name"`
	RealName    *string `json:"real_name"`
	Email       *string `json:"email_address"`
	OldPassword string  `json:"oldpasswrd"`
	Password    string  `json:"passwrd1"`
	Confirm     string  `json:"passwrd2"`
}

// SaveAccount validates the whole form before saving anything.
func (s *Service) SaveAccount(ctx context.Context, v *permissions.Viewer, memberID int64, in AccountInput) ([]Change, error) {
	m, err := s.loadMember(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if err := v.RequireOwnAny(permissions.ProfileIdentity, memberID); err != nil {
		return nil, err
	}

	verr := &apperr.Validation{}
	updated := *m
	var changes []Change

	if in.MemberName != nil && *in.MemberName != m.Name {
		name := Sanitize(*in.MemberName)
		if !v.Can(permissions.AdminForum) {
			verr.Add("member_name", "no_access")
		} else {
			auth.CheckMemberName(verr, "member_name", name)
			if !verr.Has("member_name") {
				taken, err := s.store.MemberNameTaken(ctx, name, memberID)
				if err != nil {
					return nil, err
				}
				if taken {
					verr.Add("member_name", "name_taken")
				}
			}
		}
		changes = diff(changes, "member_name", m.Name, name)
		updated.Name = name
	}

	if in.RealName != nil {
		name := Sanitize(*in.RealName)
		switch {
		case name == "":
			verr.Add("real_name", "field_required")
		case utf8.RuneCountInString(name) > MaxRealName:
			verr.Add("real_name", "field_too_long", MaxRealName)
		case name != m.RealName:
			taken, err := s.store.MemberNameTaken(ctx, name, memberID)
			if err != nil {
				return nil, err
			}
			if taken {
				verr.Add("real_name", "name_taken")
			}
		}
		changes = diff(changes, "real_name", m.RealName, name)
		updated.RealName = name
	}

	emailChanged := false
	if in.Email != nil && strings.TrimSpace(*in.Email) != m.Email {
		email := strings.TrimSpace(*in.Email)
		emailChanged = true
		if !auth.ValidEmail(email) {
			verr.Add("email_address", "email_invalid")
		} else {
			taken, err := s.store.EmailTaken(ctx, email, memberID)
			if err != nil {
				return nil, err
			}
			if taken {
				verr.Add("email_address", "email_taken")
			}
		}
		changes = diff(changes, "email_address", m.Email, email)
		updated.Email = email
	}

	passwordChanged := in.Password != "" || in.Confirm != ""
	if passwordChanged {
		auth.CheckPasswordPair(verr, "passwrd1", in.Password, in.Confirm)
	}

	if (emailChanged || passwordChanged) && v.MemberID == memberID {
		if !auth.CheckPassword(m.PasswordHash, in.OldPassword) {
			verr.Add("oldpasswrd", "bad_password")
		}
	}

	if err := verr.Err(); err != nil {
		return nil, err
	}

	if passwordChanged {
		hash, err := auth.HashPassword(in.Password)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		updated.PasswordHash = hash
		changes = append(changes, Change{Field: "passwd"})
	}
	if len(changes) == 0 {
		return nil, nil
	}
	if err := s.store.UpdateMember(ctx, &updated); err != nil {
		return nil, fmt.Errorf("save account: %w", err)
	}
	if err := s.LogChanges(ctx, v, memberID, changes); err != nil {
		return nil, err
	}
	return changes, nil
}

// ForumProfilePage is the context of the forum_profile area.
type ForumProfilePage struct {
	Member       *models.Member       `json:"member"`
	Fields       []models.CustomField `json:"custom_fields"`
	Values       map[string]string    `json:"values"`
	MaxSignature int                  `json:"max_signature"`
}

// ForumProfile shows the forum profile form.
func (s *Service) ForumProfile(ctx context.Context, v *permissions.Viewer, memberID int64) (*ForumProfilePage, error) {
	m, err := s.loadMember(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if err := v.RequireOwnAny(permissions.ProfileExtra, memberID); err != nil {
		return nil, err
	}
	values, err := s.settings.Load(ctx)
	if err != nil {
		return nil, err
	}
	stored, err := s.store.FieldValues(ctx, memberID)
	if err != nil {
		return nil, err
	}
	page := &ForumProfilePage{Member: m, Values: map[string]string{}, MaxSignature: values.Int("max_signature_length")}
	if s.fields != nil {
		admin := v.Can(permissions.AdminForum)
		for _, f := range s.fields.Fields() {
			if f.Private == models.FieldAdminOnly && !admin {
				continue
			}
			page.Fields = append(page.Fields, f)
			val, ok := stored[f.ID]
			if !ok {
				val = f.Default
			}
			page.Values[f.ColName] = val
		}
	}
	return page, nil
}

// ForumProfileInput is the forum profile form; nil fields are unchanged.
type ForumProfileInput struct {
	PersonalText *string           `json:"personal_text"`
	Signature    *string           `json:"signature"`
	Avatar       *string           `json:"avatar"`
	CustomFields map[string]string `json:"customfield"`
}

// SaveForumProfile validates and saves the forum profile form.
func (s *Service) SaveForumProfile(ctx context.Context, v *permissions.Viewer, memberID int64, in ForumProfileInput) ([]Change, error) {
	m, err := s.loadMember(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if err := v.RequireOwnAny(permissions.ProfileExtra, memberID); err != nil {
		return nil, err
	}
	values, err := s.settings.Load(ctx)
	if err != nil {
		return nil, err
	}

	verr := &apperr.Validation{}
	updated := *m
	var changes []Change

	if in.PersonalText != nil {
		text := Sanitize(*in.PersonalText)
		if utf8.RuneCountInString(text) > MaxPersonalText {
			verr.Add("personal_text", "field_too_long", MaxPersonalText)
		}
		changes = diff(changes, "personal_text", m.PersonalText, text)
		updated.PersonalText = text
	}
	if in.Signature != nil {
		sig := Sanitize(*in.Signature)
		if limit := values.Int("max_signature_length"); limit > 0 && utf8.RuneCountInString(sig) > limit {
			verr.Add("signature", "field_too_long", limit)
		}
		changes = diff(changes, "signature", m.Signature, sig)
		updated.Signature = sig
	}
	if in.Avatar != nil {
		avatar := strings.TrimSpace(*in.Avatar)
		if !validURL(avatar) {
			verr.Add("avatar", "url_invalid")
		}
		changes = diff(changes, "avatar", m.Avatar, avatar)
		updated.Avatar = avatar
	}

	var fieldValues map[int64]string
	if len(in.CustomFields) > 0 && s.fields != nil {
		fieldValues, err = s.fields.Validate(ctx, in.CustomFields, v.Can(permissions.AdminForum))
		var ferr *apperr.Validation
		if errors.As(err, &ferr) {
			verr.Errors = append(verr.Errors, ferr.Errors...)
		} else if err != nil {
			return nil, err
		}
	}
	if err := verr.Err(); err != nil {
		return nil, err
	}

	if len(fieldValues) > 0 {
		stored, err := s.store.FieldValues(ctx, memberID)
		if err != nil {
			return nil, err
		}
		for _, f := range s.fields.Fields() {
			if next, ok := fieldValues[f.ID]; ok {
				changes = diff(changes, "customfield["+f.ColName+"]", stored[f.ID], next)
			}
		}
		if err := s.store.SetFieldValues(ctx, memberID, fieldValues); err != nil {
			return nil, fmt.Errorf("save custom fields: %w", err)
		}
	}
	if updated != *m {
		if err := s.store.UpdateMember(ctx, &updated); err != nil {
			return nil, fmt.Errorf("save forum profile: %w", err)
		}
	}
	if err := s.LogChanges(ctx, v, memberID, changes); err != nil {
		return nil, err
	}
	return changes, nil
}

// PreferencesPage is the context of the preferences area.
type PreferencesPage struct {
	Language   string   `json:"language"`
	Timezone   string   `json:"timezone"`
	TimeFormat string   `json:"time_format"`
	Languages  []string `json:"languages"`
}

// Preferences shows the look and layout preferences.
func (s *Service) Preferences(ctx context.Context, v *permissions.Viewer, memberID int64) (*PreferencesPage, error) {
	m, err := s.loadMember(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if err := v.RequireOwnAny(permissions.ProfileExtra, memberID); err != nil {
		return nil, err
	}
	page := &PreferencesPage{Language: m.Language, Timezone: m.Timezone, TimeFormat: m.TimeFormat}
	if s.bundle != nil {
		page.Languages = s.bundle.Locales()
	}
	return page, nil
}

// PreferencesInput is the preferences form; nil fields are unchanged.
type PreferencesInput struct {
	Language   *string `json:"lngfile"`
	Timezone   *string `json:"timezone"`
	TimeFormat *string `json:"time_format"`
}

// SavePreferences validates and saves the preferences form.
func (s *Service) SavePreferences(ctx context.Context, v *permissions.Viewer, memberID int64, in PreferencesInput) ([]Change, error) {
	m, err := s.loadMember(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if err := v.RequireOwnAny(permissions.ProfileExtra, memberID); err != nil {
		return nil, err
	}
	verr := &apperr.Validation{}
	updated := *m
	var changes []Change

	if in.Language != nil {
		l := strings.TrimSpace(*in.Language)
		if l != "" && (s.bundle == nil || !s.bundle.Supports(l)) {
			verr.Add("lngfile", "language_unknown")
		}
		changes = diff(changes, "lngfile", m.Language, l)
		updated.Language = l
	}
	if in.Timezone != nil {
		tz := strings.TrimSpace(*in.Timezone)
		if tz != "" {
			if _, err := time.LoadLocation(tz); err != nil {
				verr.Add("timezone", "timezone_unknown")
			}
		}
		changes = diff(changes, "timezone", m.Timezone, tz)
		updated.Timezone = tz
	}
	if in.TimeFormat != nil {
		tf := Sanitize(*in.TimeFormat)
		if utf8.RuneCountInString(tf) > MaxTimeFormat {
			verr.Add("time_format", "field_too_long", MaxTimeFormat)
		}
		changes = diff(changes, "time_format", m.TimeFormat, tf)
		updated.TimeFormat = tf
	}
	if err := verr.Err(); err != nil {
		return nil, err
	}
	if len(changes) == 0 {
		return nil, nil
	}
	if err := s.store.UpdateMember(ctx, &updated); err != nil {
		return nil, fmt.Errorf("save preferences: %w", err)
	}
	if err := s.LogChanges(ctx, v, memberID, changes); err != nil {
		return nil, err
	}
	return changes, nil
}

// validURL accepts an empty string or an absolute http(s) URL.
func validURL(s string) bool {
	if s == "" {
		return true
	}
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

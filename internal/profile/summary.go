package profile

import (
	"context"

	"github.com/StoryBB/StoryBB-sub005/internal/apperr"
	"github.com/StoryBB/StoryBB-sub005/internal/customfields"
	"github.com/StoryBB/StoryBB-sub005/internal/permissions"
	"github.com/StoryBB/StoryBB-sub005/pkg/models"
)

// WarningSummary is the warning block of the summary page.
type WarningSummary struct {
	Level  int    `json:"level"`
	Status string `json:"status"`
}

// SummaryPage is the context of the summary area.
type SummaryPage struct {
	*MemberContext
	Fields  []customfields.Display `json:"custom_fields"`
	Warning *WarningSummary        `json:"warning,omitempty"`
	IsOwner bool                   `json:"is_owner"`
}

// Summary shows a member's public profile.
func (s *Service) Summary(ctx context.Context, v *permissions.Viewer, memberID int64) (*SummaryPage, error) {
	if err := v.Require(permissions.ProfileView); err != nil {
		return nil, err
	}
	mc, err := s.LoadMemberContext(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if mc == nil {
		return nil, apperr.NotFound("not_a_user")
	}
	owner := !v.IsGuest() && v.MemberID == memberID
	admin := v.Can(permissions.AdminForum)

	m := *mc.Member
	level := m.Warning
	if !owner && !admin {
		m.Email = ""
	}
	canSeeWarning := v.CanOwnAny(permissions.ViewWarning, memberID)
	if !canSeeWarning {
		m.Warning = 0
	}
	mc.Member = &m

	page := &SummaryPage{MemberContext: mc, IsOwner: owner}
	if s.fields != nil {
		page.Fields = customfields.Visible(s.fields.Fields(), mc.FieldValues, owner, admin)
	}

	values, err := s.settings.Load(ctx)
	if err != nil {
		return nil, err
	}
	wc := values.Warning()
	if wc.Enabled && canSeeWarning {
		page.Warning = &WarningSummary{Level: level, Status: wc.Status(level)}
	}
	return page, nil
}

// isAdminMember reports whether the member belongs to the administrator
// group as primary or additional group.
func (s *Service) isAdminMember(ctx context.Context, m *models.Member) (bool, error) {
	if m.PrimaryGroup == models.GroupAdministrator {
		return true, nil
	}
	extra, err := s.store.AdditionalGroups(ctx, m.ID)
	if err != nil {
		return false, err
	}
	for _, g := range extra {
		if g == models.GroupAdministrator {
			return true, nil
		}
	}
	return false, nil
}

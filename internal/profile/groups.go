package profile

import (
	"context"
	"fmt"
	"slices"
	"unicode/utf8"

	"github.com/StoryBB/StoryBB-sub005/internal/apperr"
	"github.com/StoryBB/StoryBB-sub005/internal/notify"
	"github.com/StoryBB/StoryBB-sub005/internal/permissions"
	"github.com/StoryBB/StoryBB-sub005/pkg/models"
)

// Group membership actions.
const (
	GroupJoin    = "join"
	GroupRequest = "request"
	GroupLeave   = "leave"
	GroupPrimary = "primary"
)

// MaxRequestReason bounds a group request reason.
const MaxRequestReason = 255

// GroupRow is a group on the membership page.
type GroupRow struct {
	models.Group
	Primary  bool `json:"primary"`
	CanLeave bool `json:"can_leave"`
	Pending  bool `json:"pending"`
}

// GroupsPage is the context of the groups area.
type GroupsPage struct {
	Current  []GroupRow            `json:"current"`
	Joinable []GroupRow            `json:"joinable"`
	Requests []models.GroupRequest `json:"requests"`
}

// memberGroups returns the primary group id and the additional group ids.
func (s *Service) memberGroups(ctx context.Context, m *models.Member) ([]int64, error) {
	extra, err := s.store.AdditionalGroups(ctx, m.ID)
	if err != nil {
		return nil, fmt.Errorf("load additional groups: %w", err)
	}
	if m.PrimaryGroup != models.GroupRegular && !slices.Contains(extra, m.PrimaryGroup) {
		extra = append([]int64{m.PrimaryGroup}, extra...)
	}
	return extra, nil
}

func canLeave(v *permissions.Viewer, g models.Group) bool {
	if v.Can(permissions.ManageMembergroup) {
		return true
	}
	return g.Type == models.GroupRequestable || g.Type == models.GroupFree
}

// Groups shows the member's groups, the groups they may join and their open
// requests.
func (s *Service) Groups(ctx context.Context, v *permissions.Viewer, memberID int64) (*GroupsPage, error) {
	m, err := s.loadMember(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if err := requireOwnOr(v, memberID, permissions.ManageMembergroup); err != nil {
		return nil, err
	}
	in, err := s.memberGroups(ctx, m)
	if err != nil {
		return nil, err
	}
	all, err := s.store.ListGroups(ctx)
	if err != nil {
		return nil, err
	}
	requests, err := s.store.ListGroupRequests(ctx, memberID, models.RequestOpen)
	if err != nil {
		return nil, err
	}

	page := &GroupsPage{Requests: requests}
	for _, g := range all {
		switch {
		case slices.Contains(in, g.ID):
			page.Current = append(page.Current, GroupRow{Group: g, Primary: g.ID == m.PrimaryGroup, CanLeave: canLeave(v, g)})
		case g.Hidden || g.IsCharacter:
		case g.Type == models.GroupFree || g.Type == models.GroupRequestable:
			pending := slices.ContainsFunc(requests, func(r models.GroupRequest) bool { return r.GroupID == g.ID })
			page.Joinable = append(page.Joinable, GroupRow{Group: g, Pending: pending})
		}
	}
	return page, nil
}

// GroupActionInput is a membership change.
type GroupActionInput struct {
	Action  string `json:"action"`
	GroupID int64  `json:"group"`
	Reason  string `json:"reason"`
}

// GroupAction applies a join, request, leave or primary action and returns
// the language key of the success message.
func (s *Service) GroupAction(ctx context.Context, v *permissions.Viewer, memberID int64, in GroupActionInput) (string, error) {
	m, err := s.loadMember(ctx, memberID)
	if err != nil {
		return "", err
	}
	if err := requireOwnOr(v, memberID, permissions.ManageMembergroup); err != nil {
		return "", err
	}
	in.Reason = Sanitize(in.Reason)

	var g *models.Group
	if in.GroupID != models.GroupRegular {
		if g, err = s.store.GetGroup(ctx, in.GroupID); err != nil {
			return "", err
		}
		if g == nil {
			return "", apperr.NotFound("no_such_group")
		}
	}
	current, err := s.memberGroups(ctx, m)
	if err != nil {
		return "", err
	}
	member := slices.Contains(current, in.GroupID)

	switch in.Action {
	case GroupJoin:
		if g == nil || g.Type != models.GroupFree || g.Hidden || g.IsCharacter {
			return "", apperr.Forbidden("group_not_joinable")
		}
		if member {
			return "", apperr.Conflict("already_in_group")
		}
		if err := s.store.AddAdditionalGroup(ctx, memberID, g.ID); err != nil {
			return "", fmt.Errorf("join group: %w", err)
		}
		return "group_joined", s.logGroup(ctx, v, memberID, "group_join", g.ID)

	case GroupRequest:
		return s.requestGroup(ctx, v, m, g, member, in.Reason)

	case GroupLeave:
		if g == nil || !member {
			return "", apperr.BadRequest("not_in_group")
		}
		if !canLeave(v, *g) {
			return "", apperr.Forbidden("group_not_leavable")
		}
		if g.ID == models.GroupAdministrator {
			admins, err := s.store.MembersInGroup(ctx, models.GroupAdministrator)
			if err != nil {
				return "", err
			}
			others := slices.DeleteFunc(admins, func(id int64) bool { return id == memberID })
			if !v.IsAdmin() || len(others) == 0 {
				return "", apperr.Forbidden("cannot_leave_last_admin")
			}
		}
		if err := s.store.LeaveGroup(ctx, memberID, g.ID); err != nil {
			return "", fmt.Errorf("leave group: %w", err)
		}
		return "group_left", s.logGroup(ctx, v, memberID, "group_leave", g.ID)

	case GroupPrimary:
		if g != nil && (!member || g.Hidden) {
			return "", apperr.BadRequest("not_in_group")
		}
		if err := s.store.SetPrimaryGroup(ctx, memberID, in.GroupID); err != nil {
			return "", fmt.Errorf("set primary group: %w", err)
		}
		return "group_primary_set", s.logGroup(ctx, v, memberID, "group_primary", in.GroupID)
	}
	return "", apperr.BadRequest("invalid_request")
}

func (s *Service) requestGroup(ctx context.Context, v *permissions.Viewer, m *models.Member, g *models.Group, member bool, reason string) (string, error) {
	if g == nil || g.Type != models.GroupRequestable || g.Hidden || g.IsCharacter {
		return "", apperr.Forbidden("group_not_joinable")
	}
	if member {
		return "", apperr.Conflict("already_in_group")
	}
	switch {
	case reason == "":
		return "", apperr.Invalid("reason", "group_request_reason")
	case utf8.RuneCountInString(reason) > MaxRequestReason:
		return "", apperr.Invalid("reason", "field_too_long", MaxRequestReason)
	}
	open, err := s.store.OpenGroupRequest(ctx, m.ID, g.ID)
	if err != nil {
		return "", err
	}
	if open != nil {
		return "", apperr.Conflict("already_requested_group")
	}
	req := &models.GroupRequest{MemberID: m.ID, GroupID: g.ID, Applied: s.now(), Reason: reason, Status: models.RequestOpen}
	id, err := s.store.CreateGroupRequest(ctx, req)
	if err != nil {
		return "", fmt.Errorf("create group request: %w", err)
	}

	recipients, err := s.store.GroupModerators(ctx, g.ID)
	if err != nil {
		return "", err
	}
	if len(recipients) == 0 {
		if recipients, err = s.store.MembersWithPermission(ctx, permissions.ManageMembergroup); err != nil {
			return "", err
		}
	}
	s.notify(ctx, notify.Event{
		Pref:        notify.PrefGroupRequest,
		Recipients:  recipients,
		StartedBy:   m.ID,
		ActorName:   m.DisplayName(),
		ContentType: "groupr",
		ContentID:   id,
		Action:      notify.PrefGroupRequest,
		Extra:       map[string]string{"group": g.Name},
	})
	return "group_requested", s.logGroup(ctx, v, m.ID, "group_request", g.ID)
}

func (s *Service) logGroup(ctx context.Context, v *permissions.Viewer, memberID int64, action string, groupID int64) error {
	return s.logAction(ctx, models.LogProfile, v, memberID, action, map[string]any{"group": groupID})
}

// canModerateGroup reports whether the viewer may resolve requests for groupID.
func (s *Service) canModerateGroup(ctx context.Context, v *permissions.Viewer, groupID int64) (bool, error) {
	if v.Can(permissions.ManageMembergroup) {
		return true, nil
	}
	mods, err := s.store.GroupModerators(ctx, groupID)
	if err != nil {
		return false, err
	}
	return slices.Contains(mods, v.MemberID), nil
}

// GroupRequests lists the open requests the viewer may resolve.
func (s *Service) GroupRequests(ctx context.Context, v *permissions.Viewer) ([]models.GroupRequest, error) {
	if err := v.RequireMember(); err != nil {
		return nil, err
	}
	all, err := s.store.ListGroupRequests(ctx, 0, models.RequestOpen)
	if err != nil {
		return nil, err
	}
	var out []models.GroupRequest
	for _, r := range all {
		ok, err := s.canModerateGroup(ctx, v, r.GroupID)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, r)
		}
	}
	return out, nil
}

// ResolveGroupRequest approves or rejects an open group request.
func (s *Service) ResolveGroupRequest(ctx context.Context, v *permissions.Viewer, requestID int64, approve bool, reason string) error {
	if err := v.RequireMember(); err != nil {
		return err
	}
	req, err := s.store.GetGroupRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if req == nil || req.Status != models.RequestOpen {
		return apperr.NotFound("no_such_request")
	}
	ok, err := s.canModerateGroup(ctx, v, req.GroupID)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Permission(permissions.ManageMembergroup)
	}

	status, pref := models.RequestRejected, notify.PrefGroupRejected
	if approve {
		status, pref = models.RequestApproved, notify.PrefGroupApproved
	}
	resolved, err := s.store.ResolveGroupRequest(ctx, req.ID, status, v.MemberID, Sanitize(reason), s.now())
	if err != nil {
		return fmt.Errorf("resolve group request: %w", err)
	}
	if !resolved {
		return apperr.NotFound("no_such_request")
	}
	s.notify(ctx, notify.Event{
		Pref:        pref,
		Recipients:  []int64{req.MemberID},
		StartedBy:   v.MemberID,
		ActorName:   v.Name,
		ContentType: "groupr",
		ContentID:   req.ID,
		Action:      pref,
		Extra:       map[string]string{"group": req.GroupName, "reason": Sanitize(reason)},
	})
	return s.logAction(ctx, models.LogModeration, v, req.MemberID, pref, map[string]any{"group": req.GroupID, "request": req.ID})
}

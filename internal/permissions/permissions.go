// Package permissions resolves what the current viewer is allowed to do from
// their groups and warning level.
package permissions

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/StoryBB/StoryBB-sub005/internal/apperr"
	"github.com/StoryBB/StoryBB-sub005/internal/settings"
	"github.com/StoryBB/StoryBB-sub005/pkg/models"
)

// Known permission names.
const (
	ProfileView       = "profile_view"
	ProfileIdentity   = "profile_identity"
	ProfileExtra      = "profile_extra"
	ProfileRemove     = "profile_remove"
	IssueWarning      = "issue_warning"
	ViewWarning       = "view_warning"
	AdminForum        = "admin_forum"
	ModerateForum     = "moderate_forum"
	ManageMembergroup = "manage_membergroups"
	ApproveCharSheet  = "approve_char_sheet"
	CharCreate        = "char_create"
	PostNew           = "post_new"
	PostReplyOwn      = "post_reply_own"
	PostReplyAny      = "post_reply_any"
)

// postingPermissions are withdrawn from muted members.
var postingPermissions = []string{PostNew, PostReplyOwn, PostReplyAny}

// Set is a set of granted permissions.
type Set map[string]bool

// Viewer is the member (or guest) making a request.
type Viewer struct {
	MemberID         int64
	Name             string
	Email            string
	PrimaryGroup     int64
	Groups           []int64
	Perms            Set
	Warning          int
	WarningStatus    string
	PostsModerated   bool
	Language         string
	Timezone         string
	CurrentCharacter int64
	IP               string
}

// Guest returns a viewer with no account.
func Guest() *Viewer {
	return &Viewer{Groups: []int64{models.GroupGuests}, Perms: Set{}, WarningStatus: "none"}
}

func (v *Viewer) IsGuest() bool { return v == nil || v.MemberID == 0 }

func (v *Viewer) IsAdmin() bool {
	return !v.IsGuest() && slices.Contains(v.Groups, models.GroupAdministrator)
}

func (v *Viewer) InGroup(id int64) bool {
	return slices.Contains(v.Groups, id)
}

// Can reports whether the viewer holds permission. Administrators hold all.
func (v *Viewer) Can(permission string) bool {
	if v == nil {
		return false
	}
	if v.IsAdmin() {
		return true
	}
	return v.Perms[permission]
}

// CanOwnAny checks a permission pair such as profile_extra_own/_any.
func (v *Viewer) CanOwnAny(base string, ownerID int64) bool {
	if v.Can(base + "_any") {
		return true
	}
	return !v.IsGuest() && ownerID == v.MemberID && v.Can(base+"_own")
}

// Require fails with cannot_<permission> unless the viewer holds it.
func (v *Viewer) Require(permission string) error {
	if v.Can(permission) {
		return nil
	}
	if v.IsGuest() {
		return apperr.Unauthorized()
	}
	return apperr.Permission(permission)
}

// RequireOwnAny is Require for an _own/_any permission pair.
func (v *Viewer) RequireOwnAny(base string, ownerID int64) error {
	if v.CanOwnAny(base, ownerID) {
		return nil
	}
	if v.IsGuest() {
		return apperr.Unauthorized()
	}
	if ownerID == v.MemberID {
		return apperr.Permission(base + "_own")
	}
	return apperr.Permission(base + "_any")
}

// RequireMember fails for guests.
func (v *Viewer) RequireMember() error {
	if v.IsGuest() {
		return apperr.Unauthorized()
	}
	return nil
}

// CanSeeBoard reports whether the viewer's groups intersect a board's CSV
// access list. Administrators see every board.
func (v *Viewer) CanSeeBoard(memberGroups string) bool {
	if v.IsAdmin() {
		return true
	}
	for _, g := range strings.Split(memberGroups, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(g), 10, 64)
		if err == nil && v.InGroup(id) {
			return true
		}
	}
	return false
}

// Repo is the storage the checker needs.
type Repo interface {
	GetMember(ctx context.Context, id int64) (*models.Member, error)
	AdditionalGroups(ctx context.Context, memberID int64) ([]int64, error)
	GroupPermissions(ctx context.Context, groupIDs []int64) ([]models.Permission, error)
}

// Checker builds viewers.
type Checker struct {
	repo     Repo
	settings *settings.Store
}

func NewChecker(repo Repo, s *settings.Store) *Checker {
	return &Checker{repo: repo, settings: s}
}

// Viewer loads the viewer for memberID; 0 or an unknown id yields a guest.
func (c *Checker) Viewer(ctx context.Context, memberID int64) (*Viewer, error) {
	if memberID == 0 {
		return c.guest(ctx)
	}
	m, err := c.repo.GetMember(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("load viewer: %w", err)
	}
	if m == nil || !m.Activated {
		return c.guest(ctx)
	}
	extra, err := c.repo.AdditionalGroups(ctx, m.ID)
	if err != nil {
		return nil, fmt.Errorf("load viewer groups: %w", err)
	}
	groups := []int64{models.GroupRegular}
	if m.PrimaryGroup != models.GroupRegular {
		groups = append(groups, m.PrimaryGroup)
	}
	for _, g := range extra {
		if !slices.Contains(groups, g) {
			groups = append(groups, g)
		}
	}
	rows, err := c.repo.GroupPermissions(ctx, groups)
	if err != nil {
		return nil, fmt.Errorf("load permissions: %w", err)
	}
	values, err := c.settings.Load(ctx)
	if err != nil {
		return nil, err
	}
	v := &Viewer{
		MemberID:         m.ID,
		Name:             m.DisplayName(),
		Email:            m.Email,
		PrimaryGroup:     m.PrimaryGroup,
		Groups:           groups,
		Perms:            Compute(rows),
		Warning:          m.Warning,
		Language:         m.Language,
		Timezone:         m.Timezone,
		CurrentCharacter: m.CurrentCharacter,
	}
	ApplyWarning(v, values.Warning())
	return v, nil
}

func (c *Checker) guest(ctx context.Context) (*Viewer, error) {
	rows, err := c.repo.GroupPermissions(ctx, []int64{models.GroupGuests})
	if err != nil {
		return nil, fmt.Errorf("load guest permissions: %w", err)
	}
	v := Guest()
	v.Perms = Compute(rows)
	return v, nil
}

// Compute unions allow rows and then removes anything denied by any group.
func Compute(rows []models.Permission) Set {
	out := Set{}
	denied := map[string]bool{}
	for _, r := range rows {
		if r.Allow {
			out[r.Name] = true
		} else {
			denied[r.Name] = true
		}
	}
	for p := range denied {
		delete(out, p)
	}
	return out
}

// ApplyWarning restricts the viewer according to their warning level.
func ApplyWarning(v *Viewer, w settings.WarningConfig) {
	v.WarningStatus = w.Status(v.Warning)
	switch v.WarningStatus {
	case "mute":
		for _, p := range postingPermissions {
			delete(v.Perms, p)
		}
		v.PostsModerated = true
	case "moderate":
		v.PostsModerated = true
	}
}

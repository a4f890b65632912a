package profile

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/StoryBB/StoryBB-sub005/internal/apperr"
	"github.com/StoryBB/StoryBB-sub005/internal/notify"
	"github.com/StoryBB/StoryBB-sub005/internal/permissions"
	"github.com/StoryBB/StoryBB-sub005/pkg/models"
)

func checkKind(kind string) error {
	if kind != models.ContactBuddy && kind != models.ContactIgnore {
		return apperr.NotFound("no_access")
	}
	return nil
}

// Contacts lists a member's buddies or ignored members.
func (s *Service) Contacts(ctx context.Context, v *permissions.Viewer, memberID int64, kind string) ([]models.MemberRef, error) {
	if err := checkKind(kind); err != nil {
		return nil, err
	}
	if _, err := s.loadMember(ctx, memberID); err != nil {
		return nil, err
	}
	if err := requireOwn(v, memberID); err != nil {
		return nil, err
	}
	return s.store.ListContacts(ctx, memberID, kind)
}

// splitNames splits a comma-separated list, dropping blanks and duplicates.
func splitNames(list string) []string {
	var out []string
	seen := map[string]bool{}
	for _, n := range strings.Split(list, ",") {
		n = Sanitize(n)
		if n == "" || seen[strings.ToLower(n)] {
			continue
		}
		seen[strings.ToLower(n)] = true
		out = append(out, n)
	}
	return out
}

// AddContacts adds comma-separated member names to a contact list and
// returns the members that were newly added.
func (s *Service) AddContacts(ctx context.Context, v *permissions.Viewer, memberID int64, kind, names string) ([]models.MemberRef, error) {
	if err := checkKind(kind); err != nil {
		return nil, err
	}
	if _, err := s.loadMember(ctx, memberID); err != nil {
		return nil, err
	}
	if err := requireOwn(v, memberID); err != nil {
		return nil, err
	}
	wanted := splitNames(names)
	if len(wanted) == 0 {
		return nil, apperr.Invalid("names", "field_required")
	}
	found, err := s.store.FindMembersByName(ctx, wanted)
	if err != nil {
		return nil, fmt.Errorf("find members: %w", err)
	}

	var unknown []string
	for _, n := range wanted {
		if !slices.ContainsFunc(found, func(m models.Member) bool {
			return strings.EqualFold(m.Name, n) || strings.EqualFold(m.RealName, n)
		}) {
			unknown = append(unknown, n)
		}
	}
	verr := &apperr.Validation{}
	if len(unknown) > 0 {
		verr.Add("names", "unknown_members", strings.Join(unknown, ", "))
	}
	if slices.ContainsFunc(found, func(m models.Member) bool { return m.ID == memberID }) {
		verr.Add("names", "cannot_add_self")
	}
	if err := verr.Err(); err != nil {
		return nil, err
	}

	existing, err := s.store.ListContacts(ctx, memberID, kind)
	if err != nil {
		return nil, err
	}
	var added []models.MemberRef
	var ids []int64
	for _, m := range found {
		if slices.ContainsFunc(existing, func(r models.MemberRef) bool { return r.ID == m.ID }) {
			continue
		}
		ids = append(ids, m.ID)
		added = append(added, models.MemberRef{ID: m.ID, Name: m.DisplayName()})
	}
	if len(ids) == 0 {
		return nil, nil
	}
	if err := s.store.AddContacts(ctx, memberID, kind, ids); err != nil {
		return nil, fmt.Errorf("add contacts: %w", err)
	}
	if kind == models.ContactBuddy {
		s.notify(ctx, notify.Event{
			Pref:        notify.PrefBuddyRequest,
			Recipients:  ids,
			StartedBy:   v.MemberID,
			ActorName:   v.Name,
			ContentType: "member",
			ContentID:   memberID,
			Action:      notify.PrefBuddyRequest,
		})
	}
	return added, nil
}

// RemoveContact removes one member from a contact list.
func (s *Service) RemoveContact(ctx context.Context, v *permissions.Viewer, memberID int64, kind string, contactID int64) error {
	if err := checkKind(kind); err != nil {
		return err
	}
	if _, err := s.loadMember(ctx, memberID); err != nil {
		return err
	}
	if err := requireOwn(v, memberID); err != nil {
		return err
	}
	ok, err := s.store.RemoveContact(ctx, memberID, kind, contactID)
	if err != nil {
		return fmt.Errorf("remove contact: %w", err)
	}
	if !ok {
		return apperr.NotFound("no_such_contact")
	}
	return nil
}

// BoardChoice is one board on the ignore boards form.
type BoardChoice struct {
	Board    models.Board `json:"board"`
	Category string       `json:"category"`
	Ignored  bool         `json:"ignored"`
}

// IgnoreBoards lists the boards the member can see with their ignore flag.
func (s *Service) IgnoreBoards(ctx context.Context, v *permissions.Viewer, memberID int64) ([]BoardChoice, error) {
	if _, err := s.loadMember(ctx, memberID); err != nil {
		return nil, err
	}
	if err := requireOwn(v, memberID); err != nil {
		return nil, err
	}
	cats, err := s.store.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	catNames := map[int64]string{}
	for _, c := range cats {
		catNames[c.ID] = c.Name
	}
	boards, err := s.visibleBoards(ctx, v)
	if err != nil {
		return nil, err
	}
	ignored, err := s.store.IgnoredBoards(ctx, memberID)
	if err != nil {
		return nil, err
	}
	out := make([]BoardChoice, 0, len(boards))
	for _, b := range boards {
		out = append(out, BoardChoice{Board: b, Category: catNames[b.CategoryID], Ignored: slices.Contains(ignored, b.ID)})
	}
	return out, nil
}

// SaveIgnoreBoards replaces the member's ignored boards.
func (s *Service) SaveIgnoreBoards(ctx context.Context, v *permissions.Viewer, memberID int64, boardIDs []int64) error {
	if _, err := s.loadMember(ctx, memberID); err != nil {
		return err
	}
	if err := requireOwn(v, memberID); err != nil {
		return err
	}
	boards, err := s.visibleBoards(ctx, v)
	if err != nil {
		return err
	}
	var ids []int64
	for _, id := range boardIDs {
		if !slices.ContainsFunc(boards, func(b models.Board) bool { return b.ID == id }) {
			return apperr.NotFound("no_such_board")
		}
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	if err := s.store.SetIgnoredBoards(ctx, memberID, ids); err != nil {
		return fmt.Errorf("save ignored boards: %w", err)
	}
	return nil
}

// visibleBoards returns the boards the viewer may access.
func (s *Service) visibleBoards(ctx context.Context, v *permissions.Viewer) ([]models.Board, error) {
	all, err := s.store.ListBoards(ctx)
	if err != nil {
		return nil, fmt.Errorf("list boards: %w", err)
	}
	var out []models.Board
	for _, b := range all {
		if v.CanSeeBoard(b.MemberGroups) {
			out = append(out, b)
		}
	}
	return out, nil
}

package profile

import (
	"context"

	"github.com/StoryBB/StoryBB-sub005/internal/permissions"
	"github.com/StoryBB/StoryBB-sub005/pkg/models"
)

// PostsPage is the context of the show_posts area.
type PostsPage struct {
	Character *models.Character `json:"character,omitempty"`
	Messages  []models.Message  `json:"messages"`
	Page      Page              `json:"pagination"`
}

// ShowPosts lists a member's posts, optionally for one character, in the
// boards the viewer can access.
func (s *Service) ShowPosts(ctx context.Context, v *permissions.Viewer, memberID, characterID int64, page int) (*PostsPage, error) {
	if _, err := s.loadMember(ctx, memberID); err != nil {
		return nil, err
	}
	if err := v.Require(permissions.ProfileView); err != nil {
		return nil, err
	}
	out := &PostsPage{}
	if characterID > 0 {
		c, err := s.loadCharacter(ctx, memberID, characterID)
		if err != nil {
			return nil, err
		}
		out.Character = c
	}
	boards, err := s.visibleBoards(ctx, v)
	if err != nil {
		return nil, err
	}
	if len(boards) == 0 {
		out.Page = NewPage(1, 0)
		return out, nil
	}
	ids := make([]int64, len(boards))
	for i, b := range boards {
		ids[i] = b.ID
	}
	total, err := s.store.CountMessagesByMember(ctx, memberID, characterID, ids)
	if err != nil {
		return nil, err
	}
	out.Page = NewPage(page, total)
	if out.Messages, err = s.store.MessagesByMember(ctx, memberID, characterID, ids, out.Page.PerPage, out.Page.Offset()); err != nil {
		return nil, err
	}
	return out, nil
}

// ChangesPage is the context of the profile_changes area.
type ChangesPage struct {
	Entries []models.ActionLog `json:"entries"`
	Page    Page               `json:"pagination"`
}

// ProfileChanges lists the profile log of a member.
func (s *Service) ProfileChanges(ctx context.Context, v *permissions.Viewer, memberID int64, page int) (*ChangesPage, error) {
	if _, err := s.loadMember(ctx, memberID); err != nil {
		return nil, err
	}
	if err := requireOwnOr(v, memberID, permissions.AdminForum); err != nil {
		return nil, err
	}
	total, err := s.store.CountActions(ctx, models.LogProfile, memberID)
	if err != nil {
		return nil, err
	}
	p := NewPage(page, total)
	entries, err := s.store.ListActions(ctx, models.LogProfile, memberID, p.PerPage, p.Offset())
	if err != nil {
		return nil, err
	}
	return &ChangesPage{Entries: entries, Page: p}, nil
}

package profile

import (
	"context"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/StoryBB/StoryBB-sub005/internal/apperr"
	"github.com/StoryBB/StoryBB-sub005/internal/notify"
	"github.com/StoryBB/StoryBB-sub005/internal/permissions"
	"github.com/StoryBB/StoryBB-sub005/pkg/models"
)

// MaxSheetLength bounds a character sheet version.
const MaxSheetLength = 65535

// SheetPage is the context of the character sheet area.
type SheetPage struct {
	Character *models.Character     `json:"character"`
	Approved  *models.SheetVersion  `json:"approved,omitempty"`
	Latest    *models.SheetVersion  `json:"latest,omitempty"`
	Comments  []models.SheetComment `json:"comments,omitempty"`
	CanEdit   bool                  `json:"can_edit"`
	CanReview bool                  `json:"can_review"`
}

// sheetCharacter loads a non-main character for the sheet operations.
func (s *Service) sheetCharacter(ctx context.Context, memberID, characterID int64) (*models.Character, error) {
	if _, err := s.loadMember(ctx, memberID); err != nil {
		return nil, err
	}
	c, err := s.loadCharacter(ctx, memberID, characterID)
	if err != nil {
		return nil, err
	}
	if c.IsMain {
		return nil, apperr.BadRequest("no_sheet_main_char")
	}
	return c, nil
}

func isOwner(v *permissions.Viewer, c *models.Character) bool {
	return !v.IsGuest() && v.MemberID == c.MemberID
}

// requireSheetAccess allows the owner and sheet approvers.
func requireSheetAccess(v *permissions.Viewer, c *models.Character) error {
	if err := v.RequireMember(); err != nil {
		return err
	}
	if isOwner(v, c) || v.Can(permissions.ApproveCharSheet) {
		return nil
	}
	return apperr.Forbidden("no_access")
}

// Sheet shows the approved sheet; the owner and approvers also see the
// latest version and the comments.
func (s *Service) Sheet(ctx context.Context, v *permissions.Viewer, memberID, characterID int64) (*SheetPage, error) {
	if err := v.Require(permissions.ProfileView); err != nil {
		return nil, err
	}
	c, err := s.sheetCharacter(ctx, memberID, characterID)
	if err != nil {
		return nil, err
	}
	page := &SheetPage{
		Character: c,
		CanEdit:   isOwner(v, c) || v.Can(permissions.ApproveCharSheet),
		CanReview: v.Can(permissions.ApproveCharSheet),
	}
	if c.SheetID > 0 {
		if page.Approved, err = s.store.GetSheetVersion(ctx, c.SheetID); err != nil {
			return nil, err
		}
	}
	if page.CanEdit {
		if page.Latest, err = s.store.LatestSheetVersion(ctx, c.ID); err != nil {
			return nil, err
		}
		if page.Comments, err = s.store.ListSheetComments(ctx, c.ID); err != nil {
			return nil, err
		}
	}
	return page, nil
}

// EditSheet stores a new draft version, withdrawing any pending submission.
func (s *Service) EditSheet(ctx context.Context, v *permissions.Viewer, memberID, characterID int64, text string) (*models.SheetVersion, error) {
	c, err := s.sheetCharacter(ctx, memberID, characterID)
	if err != nil {
		return nil, err
	}
	if err := requireSheetAccess(v, c); err != nil {
		return nil, err
	}
	text = Sanitize(text)
	switch {
	case text == "":
		return nil, apperr.Invalid("sheet", "sheet_empty")
	case utf8.RuneCountInString(text) > MaxSheetLength:
		return nil, apperr.Invalid("sheet", "field_too_long", MaxSheetLength)
	}
	latest, err := s.store.LatestSheetVersion(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	if latest != nil && latest.State == models.SheetPending {
		if err := s.store.SetSheetState(ctx, latest.ID, models.SheetDraft); err != nil {
			return nil, fmt.Errorf("withdraw pending sheet: %w", err)
		}
	}
	ver := &models.SheetVersion{
		CharacterID: c.ID,
		MemberID:    v.MemberID,
		Text:        text,
		Created:     s.now(),
		State:       models.SheetDraft,
	}
	if _, err := s.store.CreateSheetVersion(ctx, ver); err != nil {
		return nil, fmt.Errorf("save sheet: %w", err)
	}
	return ver, nil
}

// SubmitSheet sends the latest draft for approval.
func (s *Service) SubmitSheet(ctx context.Context, v *permissions.Viewer, memberID, characterID int64) error {
	c, err := s.sheetCharacter(ctx, memberID, characterID)
	if err != nil {
		return err
	}
	if !isOwner(v, c) {
		return apperr.Forbidden("no_access")
	}
	latest, err := s.store.LatestSheetVersion(ctx, c.ID)
	if err != nil {
		return err
	}
	if latest == nil {
		return apperr.BadRequest("sheet_empty")
	}
	if latest.State != models.SheetDraft && latest.State != models.SheetRejected {
		return apperr.Conflict("sheet_not_draft")
	}
	if err := s.store.SetSheetState(ctx, latest.ID, models.SheetPending); err != nil {
		return fmt.Errorf("submit sheet: %w", err)
	}
	approvers, err := s.store.MembersWithPermission(ctx, permissions.ApproveCharSheet)
	if err != nil {
		return err
	}
	s.notify(ctx, notify.Event{
		Pref:        notify.PrefSheetSubmit,
		Recipients:  approvers,
		StartedBy:   v.MemberID,
		ActorName:   v.Name,
		ContentType: "member",
		ContentID:   c.ID,
		Action:      notify.PrefSheetSubmit,
		Extra:       map[string]string{"character": c.Name},
	})
	return nil
}

// pendingSheet returns the latest version when it awaits review.
func (s *Service) pendingSheet(ctx context.Context, v *permissions.Viewer, memberID, characterID int64) (*models.Character, *models.SheetVersion, error) {
	if err := v.Require(permissions.ApproveCharSheet); err != nil {
		return nil, nil, err
	}
	c, err := s.sheetCharacter(ctx, memberID, characterID)
	if err != nil {
		return nil, nil, err
	}
	latest, err := s.store.LatestSheetVersion(ctx, c.ID)
	if err != nil {
		return nil, nil, err
	}
	if latest == nil || latest.State != models.SheetPending {
		return nil, nil, apperr.Conflict("sheet_not_pending")
	}
	return c, latest, nil
}

// ApproveSheet approves the pending version and makes it current.
func (s *Service) ApproveSheet(ctx context.Context, v *permissions.Viewer, memberID, characterID int64) error {
	c, latest, err := s.pendingSheet(ctx, v, memberID, characterID)
	if err != nil {
		return err
	}
	if err := s.store.ApproveSheetVersion(ctx, latest, v.MemberID, s.now()); err != nil {
		return fmt.Errorf("approve sheet: %w", err)
	}
	s.notify(ctx, notify.Event{
		Pref:        notify.PrefCharacterApproved,
		Recipients:  []int64{c.MemberID},
		StartedBy:   v.MemberID,
		ActorName:   v.Name,
		ContentType: "member",
		ContentID:   c.ID,
		Action:      notify.PrefCharacterApproved,
		Extra:       map[string]string{"character": c.Name},
	})
	logger.Info("character sheet approved", slog.Int64("character", c.ID), slog.Int64("version", latest.ID))
	return s.logAction(ctx, models.LogModeration, v, c.MemberID, "approve_sheet", map[string]any{"character": c.ID, "version": latest.ID})
}

// RejectSheet returns the pending version to its owner with a comment.
func (s *Service) RejectSheet(ctx context.Context, v *permissions.Viewer, memberID, characterID int64, comment string) error {
	comment = Sanitize(comment)
	if comment == "" {
		return apperr.Invalid("comment", "field_required")
	}
	c, latest, err := s.pendingSheet(ctx, v, memberID, characterID)
	if err != nil {
		return err
	}
	if err := s.store.SetSheetState(ctx, latest.ID, models.SheetRejected); err != nil {
		return fmt.Errorf("reject sheet: %w", err)
	}
	if _, err := s.store.AddSheetComment(ctx, &models.SheetComment{CharacterID: c.ID, AuthorID: v.MemberID, Posted: s.now(), Body: comment}); err != nil {
		return fmt.Errorf("save sheet comment: %w", err)
	}
	s.notify(ctx, notify.Event{
		Pref:        notify.PrefCharacterRejected,
		Recipients:  []int64{c.MemberID},
		StartedBy:   v.MemberID,
		ActorName:   v.Name,
		ContentType: "member",
		ContentID:   c.ID,
		Action:      notify.PrefCharacterRejected,
		Extra:       map[string]string{"character": c.Name},
	})
	return s.logAction(ctx, models.LogModeration, v, c.MemberID, "reject_sheet", map[string]any{"character": c.ID, "version": latest.ID})
}

// SheetHistory lists every version, newest first.
func (s *Service) SheetHistory(ctx context.Context, v *permissions.Viewer, memberID, characterID int64) ([]models.SheetVersion, error) {
	c, err := s.sheetCharacter(ctx, memberID, characterID)
	if err != nil {
		return nil, err
	}
	if err := requireSheetAccess(v, c); err != nil {
		return nil, err
	}
	return s.store.ListSheetVersions(ctx, c.ID)
}

// CommentSheet appends a comment to the sheet discussion.
func (s *Service) CommentSheet(ctx context.Context, v *permissions.Viewer, memberID, characterID int64, comment string) error {
	c, err := s.sheetCharacter(ctx, memberID, characterID)
	if err != nil {
		return err
	}
	if err := requireSheetAccess(v, c); err != nil {
		return err
	}
	comment = Sanitize(comment)
	if comment == "" {
		return apperr.Invalid("comment", "field_required")
	}
	if _, err := s.store.AddSheetComment(ctx, &models.SheetComment{CharacterID: c.ID, AuthorID: v.MemberID, Posted: s.now(), Body: comment}); err != nil {
		return fmt.Errorf("save sheet comment: %w", err)
	}
	return nil
}

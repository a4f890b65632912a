package profile

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/StoryBB/StoryBB-sub005/internal/apperr"
	"github.com/StoryBB/StoryBB-sub005/internal/permissions"
	"github.com/StoryBB/StoryBB-sub005/pkg/models"
)

// MaxCharacterAge bounds the free-text age field.
const MaxCharacterAge = 50

// loadCharacter returns a character of memberID, or no_access when the
// character belongs to someone else.
func (s *Service) loadCharacter(ctx context.Context, memberID, characterID int64) (*models.Character, error) {
	c, err := s.store.GetCharacter(ctx, characterID)
	if err != nil {
		return nil, fmt.Errorf("load character %d: %w", characterID, err)
	}
	if c == nil || c.MemberID != memberID {
		return nil, apperr.NotFound("no_access")
	}
	return c, nil
}

// ensureOwnCharacter allows the owner or an administrator.
func ensureOwnCharacter(v *permissions.Viewer, c *models.Character) error {
	if err := v.RequireMember(); err != nil {
		return err
	}
	if v.MemberID != c.MemberID && !v.Can(permissions.AdminForum) {
		return apperr.Forbidden("no_access")
	}
	return nil
}

// Characters lists a member's characters: main first, then active, then
// retired.
func (s *Service) Characters(ctx context.Context, v *permissions.Viewer, memberID int64) ([]models.Character, error) {
	if _, err := s.loadMember(ctx, memberID); err != nil {
		return nil, err
	}
	if err := v.Require(permissions.ProfileView); err != nil {
		return nil, err
	}
	return s.store.ListCharacters(ctx, memberID)
}

// Character shows one character.
func (s *Service) Character(ctx context.Context, v *permissions.Viewer, memberID, characterID int64) (*models.Character, error) {
	if _, err := s.loadMember(ctx, memberID); err != nil {
		return nil, err
	}
	if err := v.Require(permissions.ProfileView); err != nil {
		return nil, err
	}
	return s.loadCharacter(ctx, memberID, characterID)
}

// CharacterInput is the create and edit character form.
type CharacterInput struct {
	Name      string `json:"char_name"`
	Avatar    string `json:"avatar"`
	Signature string `json:"signature"`
	Age       string `json:"age"`
}

func (s *Service) checkCharacter(ctx context.Context, in *CharacterInput, exceptID int64) error {
	values, err := s.settings.Load(ctx)
	if err != nil {
		return err
	}
	in.Name = Sanitize(in.Name)
	in.Avatar = strings.TrimSpace(in.Avatar)
	in.Signature = Sanitize(in.Signature)
	in.Age = Sanitize(in.Age)

	verr := &apperr.Validation{}
	nameMax := values.Int("char_name_max")
	switch {
	case in.Name == "":
		verr.Add("char_name", "field_required")
	case utf8.RuneCountInString(in.Name) > nameMax:
		verr.Add("char_name", "field_too_long", nameMax)
	default:
		taken, err := s.store.CharacterNameTaken(ctx, in.Name, exceptID)
		if err != nil {
			return err
		}
		if taken {
			verr.Add("char_name", "char_name_taken")
		}
	}
	if !validURL(in.Avatar) {
		verr.Add("avatar", "url_invalid")
	}
	if limit := values.Int("max_signature_length"); limit > 0 && utf8.RuneCountInString(in.Signature) > limit {
		verr.Add("signature", "field_too_long", limit)
	}
	if utf8.RuneCountInString(in.Age) > MaxCharacterAge {
		verr.Add("age", "field_too_long", MaxCharacterAge)
	}
	return verr.Err()
}

// CreateCharacter adds a character to a member's account.
func (s *Service) CreateCharacter(ctx context.Context, v *permissions.Viewer, memberID int64, in CharacterInput) (*models.Character, error) {
	if _, err := s.loadMember(ctx, memberID); err != nil {
		return nil, err
	}
	if err := v.RequireMember(); err != nil {
		return nil, err
	}
	if !v.Can(permissions.AdminForum) {
		if v.MemberID != memberID {
			return nil, apperr.Forbidden("no_access")
		}
		if err := v.Require(permissions.CharCreate); err != nil {
			return nil, err
		}
	}
	if err := s.checkCharacter(ctx, &in, 0); err != nil {
		return nil, err
	}
	c := &models.Character{
		MemberID:  memberID,
		Name:      in.Name,
		Avatar:    in.Avatar,
		Signature: in.Signature,
		Age:       in.Age,
		Created:   s.now(),
	}
	if _, err := s.store.CreateCharacter(ctx, c); err != nil {
		return nil, fmt.Errorf("create character: %w", err)
	}
	if err := s.logAction(ctx, models.LogProfile, v, memberID, "char_create", map[string]any{"character": c.ID, "name": c.Name}); err != nil {
		return nil, err
	}
	return c, nil
}

// EditCharacter replaces a character's details.
func (s *Service) EditCharacter(ctx context.Context, v *permissions.Viewer, memberID, characterID int64, in CharacterInput) ([]Change, error) {
	c, err := s.loadCharacter(ctx, memberID, characterID)
	if err != nil {
		return nil, err
	}
	if err := ensureOwnCharacter(v, c); err != nil {
		return nil, err
	}
	if err := s.checkCharacter(ctx, &in, c.ID); err != nil {
		return nil, err
	}
	var changes []Change
	changes = diff(changes, "char_name", c.Name, in.Name)
	changes = diff(changes, "char_avatar", c.Avatar, in.Avatar)
	changes = diff(changes, "char_signature", c.Signature, in.Signature)
	changes = diff(changes, "char_age", c.Age, in.Age)
	if len(changes) == 0 {
		return nil, nil
	}
	c.Name, c.Avatar, c.Signature, c.Age = in.Name, in.Avatar, in.Signature, in.Age
	if err := s.store.UpdateCharacter(ctx, c); err != nil {
		return nil, fmt.Errorf("update character: %w", err)
	}
	if err := s.LogChanges(ctx, v, memberID, changes); err != nil {
		return nil, err
	}
	return changes, nil
}

// DeleteCharacter removes a character without posts.
func (s *Service) DeleteCharacter(ctx context.Context, v *permissions.Viewer, memberID, characterID int64) error {
	c, err := s.loadCharacter(ctx, memberID, characterID)
	if err != nil {
		return err
	}
	if err := ensureOwnCharacter(v, c); err != nil {
		return err
	}
	if c.IsMain {
		return apperr.BadRequest("cannot_delete_main_char")
	}
	if c.Posts > 0 {
		return apperr.BadRequest("this_character_cannot_delete_posts")
	}
	if err := s.store.DeleteCharacter(ctx, c.ID); err != nil {
		return fmt.Errorf("delete character: %w", err)
	}
	return s.logAction(ctx, models.LogProfile, v, memberID, "char_delete", map[string]any{"character": c.ID, "name": c.Name})
}

// SetRetired retires or unretires a character. Retiring the current
// character switches the member back to their main character.
func (s *Service) SetRetired(ctx context.Context, v *permissions.Viewer, memberID, characterID int64, retired bool) error {
	c, err := s.loadCharacter(ctx, memberID, characterID)
	if err != nil {
		return err
	}
	if err := ensureOwnCharacter(v, c); err != nil {
		return err
	}
	if c.IsMain {
		return apperr.BadRequest("character_main_immutable")
	}
	if c.Retired == retired {
		return nil
	}
	c.Retired = retired
	if err := s.store.UpdateCharacter(ctx, c); err != nil {
		return fmt.Errorf("update character: %w", err)
	}
	if retired {
		m, err := s.loadMember(ctx, memberID)
		if err != nil {
			return err
		}
		if m.CurrentCharacter == c.ID {
			main, err := s.store.MainCharacter(ctx, memberID)
			if err != nil {
				return err
			}
			if main != nil {
				if err := s.store.SetCurrentCharacter(ctx, memberID, main.ID); err != nil {
					return err
				}
			}
		}
	}
	action := "char_unretire"
	if retired {
		action = "char_retire"
	}
	return s.logAction(ctx, models.LogProfile, v, memberID, action, map[string]any{"character": c.ID})
}

// SwitchCharacter makes a character the member's current posting identity.
func (s *Service) SwitchCharacter(ctx context.Context, v *permissions.Viewer, memberID, characterID int64) (*models.Character, error) {
	if err := requireOwn(v, memberID); err != nil {
		return nil, err
	}
	c, err := s.loadCharacter(ctx, memberID, characterID)
	if err != nil {
		return nil, err
	}
	if c.Retired {
		return nil, apperr.BadRequest("character_retired")
	}
	if err := s.store.SetCurrentCharacter(ctx, memberID, c.ID); err != nil {
		return nil, fmt.Errorf("switch character: %w", err)
	}
	return c, nil
}

// MoveCharacter hands a non-main character to another account.
func (s *Service) MoveCharacter(ctx context.Context, v *permissions.Viewer, memberID, characterID, toMemberID int64) error {
	if err := v.Require(permissions.AdminForum); err != nil {
		return err
	}
	c, err := s.loadCharacter(ctx, memberID, characterID)
	if err != nil {
		return err
	}
	if c.IsMain {
		return apperr.BadRequest("character_main_immutable")
	}
	if _, err := s.loadMember(ctx, toMemberID); err != nil {
		return err
	}
	if toMemberID == memberID {
		return nil
	}
	if err := s.store.MoveCharacter(ctx, c.ID, toMemberID); err != nil {
		return fmt.Errorf("move character: %w", err)
	}
	return s.logAction(ctx, models.LogAdmin, v, memberID, "char_move", map[string]any{
		"character": c.ID,
		"to":        strconv.FormatInt(toMemberID, 10),
	})
}

// MergeAccounts folds the source account into the destination account.
func (s *Service) MergeAccounts(ctx context.Context, v *permissions.Viewer, sourceID, destID int64) error {
	if err := v.Require(permissions.AdminForum); err != nil {
		return err
	}
	if sourceID == destID {
		return apperr.BadRequest("cannot_merge_same")
	}
	src, err := s.loadMember(ctx, sourceID)
	if err != nil {
		return err
	}
	dst, err := s.loadMember(ctx, destID)
	if err != nil {
		return err
	}
	for _, m := range []*models.Member{src, dst} {
		admin, err := s.isAdminMember(ctx, m)
		if err != nil {
			return err
		}
		if admin {
			return apperr.Forbidden("cannot_merge_admin")
		}
	}
	if err := s.store.MergeMembers(ctx, sourceID, destID); err != nil {
		return fmt.Errorf("merge members: %w", err)
	}
	return s.logAction(ctx, models.LogAdmin, v, destID, "merge", map[string]any{
		"source":      sourceID,
		"source_name": src.DisplayName(),
		"dest":        destID,
	})
}

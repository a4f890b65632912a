package profile_test

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/StoryBB/StoryBB-sub005/internal/notify"
	"github.com/StoryBB/StoryBB-sub005/internal/profile"
	"github.com/StoryBB/StoryBB-sub005/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCharacterLifecycle(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.member(t, "alice", 0)
	bob := e.member(t, "bob", 0)
	v := e.viewer(t, alice.ID)

	_, err := e.svc.CreateCharacter(ctx, v, alice.ID, profile.CharacterInput{Name: "  "})
	assert.Equal(t, "field_required", fieldKeys(t, err)["char_name"])

	_, err = e.svc.CreateCharacter(ctx, v, alice.ID, profile.CharacterInput{Name: "Bob", Avatar: "ftp://x"})
	keys := fieldKeys(t, err)
	assert.Equal(t, "char_name_taken", keys["char_name"], "names are unique across accounts")
	assert.Equal(t, "url_invalid", keys["avatar"])

	_, err = e.svc.CreateCharacter(ctx, v, alice.ID, profile.CharacterInput{Name: strings.Repeat("n", 51)})
	assert.Equal(t, "field_too_long", fieldKeys(t, err)["char_name"])

	_, err = e.svc.CreateCharacter(ctx, e.viewer(t, bob.ID), alice.ID, profile.CharacterInput{Name: "Mira"})
	_, key := langKey(t, err)
	assert.Equal(t, "no_access", key)

	mira, err := e.svc.CreateCharacter(ctx, v, alice.ID, profile.CharacterInput{Name: "Mira", Age: "27"})
	require.NoError(t, err)
	assert.False(t, mira.IsMain)

	chars, err := e.svc.Characters(ctx, e.viewer(t, 0), alice.ID)
	require.NoError(t, err)
	require.Len(t, chars, 2)
	assert.True(t, chars[0].IsMain)
	assert.Equal(t, "Mira", chars[1].Name)

	_, err = e.svc.Character(ctx, v, bob.ID, mira.ID)
	_, key = langKey(t, err)
	assert.Equal(t, "no_access", key, "characters are looked up under their owner")

	changes, err := e.svc.EditCharacter(ctx, v, alice.ID, mira.ID, profile.CharacterInput{Name: "Mira Vale", Age: "27"})
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, "char_name", changes[0].Field)

	_, err = e.svc.SwitchCharacter(ctx, v, alice.ID, mira.ID)
	require.NoError(t, err)
	assert.Equal(t, mira.ID, e.reload(t, alice.ID).CurrentCharacter)

	require.NoError(t, e.svc.SetRetired(ctx, v, alice.ID, mira.ID, true))
	assert.Equal(t, alice.CurrentCharacter, e.reload(t, alice.ID).CurrentCharacter, "retiring the current character switches back to the main")

	_, err = e.svc.SwitchCharacter(ctx, v, alice.ID, mira.ID)
	_, key = langKey(t, err)
	assert.Equal(t, "character_retired", key)

	err = e.svc.SetRetired(ctx, v, alice.ID, alice.CurrentCharacter, true)
	_, key = langKey(t, err)
	assert.Equal(t, "character_main_immutable", key)

	require.NoError(t, e.svc.SetRetired(ctx, v, alice.ID, mira.ID, false))

	err = e.svc.DeleteCharacter(ctx, v, alice.ID, alice.CurrentCharacter)
	_, key = langKey(t, err)
	assert.Equal(t, "cannot_delete_main_char", key)

	require.NoError(t, e.svc.DeleteCharacter(ctx, v, alice.ID, mira.ID))
	chars, err = e.svc.Characters(ctx, v, alice.ID)
	require.NoError(t, err)
	assert.Len(t, chars, 1)
}

func TestDeleteCharacterWithPosts(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.member(t, "alice", 0)
	v := e.viewer(t, alice.ID)

	mira, err := e.svc.CreateCharacter(ctx, v, alice.ID, profile.CharacterInput{Name: "Mira"})
	require.NoError(t, err)
	_, _, err = e.repo.CreatePost(ctx, &models.Message{BoardID: 3, MemberID: alice.ID, CharacterID: mira.ID, Subject: "Arrival", Body: "She walks in.", Approved: true})
	require.NoError(t, err)

	err = e.svc.DeleteCharacter(ctx, v, alice.ID, mira.ID)
	status, key := langKey(t, err)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "this_character_cannot_delete_posts", key)
}

func TestMoveCharacterAndMerge(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	admin := e.member(t, "admin", models.GroupAdministrator)
	alice := e.member(t, "alice", 0)
	bob := e.member(t, "bob", 0)
	av := e.viewer(t, admin.ID)

	mira, err := e.svc.CreateCharacter(ctx, e.viewer(t, alice.ID), alice.ID, profile.CharacterInput{Name: "Mira"})
	require.NoError(t, err)

	err = e.svc.MoveCharacter(ctx, e.viewer(t, alice.ID), alice.ID, mira.ID, bob.ID)
	_, key := langKey(t, err)
	assert.Equal(t, "cannot_admin_forum", key)

	require.NoError(t, e.svc.MoveCharacter(ctx, av, alice.ID, mira.ID, bob.ID))
	_, err = e.svc.Character(ctx, av, bob.ID, mira.ID)
	require.NoError(t, err)

	err = e.svc.MergeAccounts(ctx, av, bob.ID, bob.ID)
	_, key = langKey(t, err)
	assert.Equal(t, "cannot_merge_same", key)

	err = e.svc.MergeAccounts(ctx, av, admin.ID, bob.ID)
	_, key = langKey(t, err)
	assert.Equal(t, "cannot_merge_admin", key)

	require.NoError(t, e.svc.MergeAccounts(ctx, av, bob.ID, alice.ID))
	gone, err := e.repo.GetMember(ctx, bob.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	chars, err := e.svc.Characters(ctx, av, alice.ID)
	require.NoError(t, err)
	require.Len(t, chars, 2, "the source main character is folded into the destination main")
	assert.Equal(t, mira.ID, chars[1].ID)

	logs, err := e.repo.ListActions(ctx, models.LogAdmin, alice.ID, 10, 0)
	require.NoError(t, err)
	require.NotEmpty(t, logs)
	assert.Equal(t, "merge", logs[0].Action)
}

func TestSheetWorkflow(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	mod := e.member(t, "mod", 0, 2)
	alice := e.member(t, "alice", 0)
	bob := e.member(t, "bob", 0)
	v := e.viewer(t, alice.ID)
	mv := e.viewer(t, mod.ID)

	_, err := e.svc.Sheet(ctx, v, alice.ID, alice.CurrentCharacter)
	_, key := langKey(t, err)
	assert.Equal(t, "no_sheet_main_char", key)

	mira, err := e.svc.CreateCharacter(ctx, v, alice.ID, profile.CharacterInput{Name: "Mira"})
	require.NoError(t, err)

	err = e.svc.SubmitSheet(ctx, v, alice.ID, mira.ID)
	_, key = langKey(t, err)
	assert.Equal(t, "sheet_empty", key)

	_, err = e.svc.EditSheet(ctx, v, alice.ID, mira.ID, "   ")
	assert.Equal(t, "sheet_empty", fieldKeys(t, err)["sheet"])

	_, err = e.svc.EditSheet(ctx, e.viewer(t, bob.ID), alice.ID, mira.ID, "hijack")
	_, key = langKey(t, err)
	assert.Equal(t, "no_access", key)

	_, err = e.svc.EditSheet(ctx, v, alice.ID, mira.ID, "Mira is a sailor.")
	require.NoError(t, err)
	require.NoError(t, e.svc.SubmitSheet(ctx, v, alice.ID, mira.ID))

	err = e.svc.SubmitSheet(ctx, v, alice.ID, mira.ID)
	status, key := langKey(t, err)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "sheet_not_draft", key)

	submitted := e.queue.byPref(notify.PrefSheetSubmit)
	require.Len(t, submitted, 1)
	assert.Equal(t, []int64{mod.ID}, submitted[0].Recipients)

	err = e.svc.RejectSheet(ctx, mv, alice.ID, mira.ID, "")
	assert.Equal(t, "field_required", fieldKeys(t, err)["comment"])
	require.NoError(t, e.svc.RejectSheet(ctx, mv, alice.ID, mira.ID, "Needs a backstory."))
	require.Len(t, e.queue.byPref(notify.PrefCharacterRejected), 1)

	page, err := e.svc.Sheet(ctx, v, alice.ID, mira.ID)
	require.NoError(t, err)
	assert.Nil(t, page.Approved)
	require.NotNil(t, page.Latest)
	assert.Equal(t, models.SheetRejected, page.Latest.State)
	require.Len(t, page.Comments, 1)
	assert.True(t, page.CanEdit)
	assert.False(t, page.CanReview)

	err = e.svc.ApproveSheet(ctx, mv, alice.ID, mira.ID)
	_, key = langKey(t, err)
	assert.Equal(t, "sheet_not_pending", key)

	_, err = e.svc.EditSheet(ctx, v, alice.ID, mira.ID, "Mira is a sailor from the north.")
	require.NoError(t, err)
	require.NoError(t, e.svc.SubmitSheet(ctx, v, alice.ID, mira.ID))

	err = e.svc.ApproveSheet(ctx, v, alice.ID, mira.ID)
	_, key = langKey(t, err)
	assert.Equal(t, "cannot_approve_char_sheet", key)

	require.NoError(t, e.svc.ApproveSheet(ctx, mv, alice.ID, mira.ID))
	require.Len(t, e.queue.byPref(notify.PrefCharacterApproved), 1)

	page, err = e.svc.Sheet(ctx, e.viewer(t, bob.ID), alice.ID, mira.ID)
	require.NoError(t, err)
	require.NotNil(t, page.Approved)
	assert.Equal(t, "Mira is a sailor from the north.", page.Approved.Text)
	assert.Nil(t, page.Latest, "other members only see the approved sheet")

	history, err := e.svc.SheetHistory(ctx, mv, alice.ID, mira.ID)
	require.NoError(t, err)
	assert.Len(t, history, 2)

	require.NoError(t, e.svc.CommentSheet(ctx, mv, alice.ID, mira.ID, "Looks good."))
	err = e.svc.CommentSheet(ctx, e.viewer(t, bob.ID), alice.ID, mira.ID, "nice")
	_, key = langKey(t, err)
	assert.Equal(t, "no_access", key)
}

func TestEditSheetWithdrawsSubmission(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.member(t, "alice", 0)
	v := e.viewer(t, alice.ID)
	mira, err := e.svc.CreateCharacter(ctx, v, alice.ID, profile.CharacterInput{Name: "Mira"})
	require.NoError(t, err)

	first, err := e.svc.EditSheet(ctx, v, alice.ID, mira.ID, "one")
	require.NoError(t, err)
	require.NoError(t, e.svc.SubmitSheet(ctx, v, alice.ID, mira.ID))
	_, err = e.svc.EditSheet(ctx, v, alice.ID, mira.ID, "two")
	require.NoError(t, err)

	history, err := e.svc.SheetHistory(ctx, v, alice.ID, mira.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	for _, ver := range history {
		assert.Equal(t, models.SheetDraft, ver.State, "version %d", ver.ID)
	}
	assert.Equal(t, first.ID, history[1].ID)
}

package profile_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/StoryBB/StoryBB-sub005/internal/notify"
	"github.com/StoryBB/StoryBB-sub005/internal/profile"
	"github.com/StoryBB/StoryBB-sub005/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupJoinAndLeave(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.member(t, "alice", 0)
	v := e.viewer(t, alice.ID)

	page, err := e.svc.Groups(ctx, v, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, page.Current)
	require.Len(t, page.Joinable, 2, "only requestable and free groups are offered")

	key, err := e.svc.GroupAction(ctx, v, alice.ID, profile.GroupActionInput{Action: profile.GroupJoin, GroupID: 5})
	require.NoError(t, err)
	assert.Equal(t, "group_joined", key)

	_, err = e.svc.GroupAction(ctx, v, alice.ID, profile.GroupActionInput{Action: profile.GroupJoin, GroupID: 5})
	status, errKey := langKey(t, err)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "already_in_group", errKey)

	_, err = e.svc.GroupAction(ctx, v, alice.ID, profile.GroupActionInput{Action: profile.GroupJoin, GroupID: 4})
	_, errKey = langKey(t, err)
	assert.Equal(t, "group_not_joinable", errKey, "requestable groups need a request")

	_, err = e.svc.GroupAction(ctx, v, alice.ID, profile.GroupActionInput{Action: profile.GroupJoin, GroupID: 2})
	_, errKey = langKey(t, err)
	assert.Equal(t, "group_not_joinable", errKey)

	page, err = e.svc.Groups(ctx, v, alice.ID)
	require.NoError(t, err)
	require.Len(t, page.Current, 1)
	assert.True(t, page.Current[0].CanLeave)

	_, err = e.svc.GroupAction(ctx, v, alice.ID, profile.GroupActionInput{Action: profile.GroupPrimary, GroupID: 5})
	require.NoError(t, err)
	assert.Equal(t, int64(5), e.reload(t, alice.ID).PrimaryGroup)

	_, err = e.svc.GroupAction(ctx, v, alice.ID, profile.GroupActionInput{Action: profile.GroupLeave, GroupID: 5})
	require.NoError(t, err)
	m := e.reload(t, alice.ID)
	assert.Equal(t, models.GroupRegular, m.PrimaryGroup, "leaving the primary group falls back to regular members")
	extra, err := e.repo.AdditionalGroups(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, extra)

	_, err = e.svc.GroupAction(ctx, v, alice.ID, profile.GroupActionInput{Action: profile.GroupLeave, GroupID: 5})
	_, errKey = langKey(t, err)
	assert.Equal(t, "not_in_group", errKey)
}

func TestGroupLeaveRestrictions(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	admin := e.member(t, "admin", models.GroupAdministrator)
	mod := e.member(t, "mod", 0, 2)

	_, err := e.svc.GroupAction(ctx, e.viewer(t, mod.ID), mod.ID, profile.GroupActionInput{Action: profile.GroupLeave, GroupID: 2})
	_, key := langKey(t, err)
	assert.Equal(t, "group_not_leavable", key, "private groups are managed by staff")

	av := e.viewer(t, admin.ID)
	_, err = e.svc.GroupAction(ctx, av, admin.ID, profile.GroupActionInput{Action: profile.GroupLeave, GroupID: models.GroupAdministrator})
	_, key = langKey(t, err)
	assert.Equal(t, "cannot_leave_last_admin", key)

	second := e.member(t, "second", 0, models.GroupAdministrator)
	_, err = e.svc.GroupAction(ctx, av, second.ID, profile.GroupActionInput{Action: profile.GroupLeave, GroupID: models.GroupAdministrator})
	require.NoError(t, err)

	_, err = e.svc.GroupAction(ctx, av, mod.ID, profile.GroupActionInput{Action: profile.GroupLeave, GroupID: 2})
	require.NoError(t, err, "administrators manage every group")
}

func TestGroupRequestReview(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	admin := e.member(t, "admin", models.GroupAdministrator)
	alice := e.member(t, "alice", 0)
	bob := e.member(t, "bob", 0)
	v := e.viewer(t, alice.ID)

	_, err := e.svc.GroupAction(ctx, v, alice.ID, profile.GroupActionInput{Action: profile.GroupRequest, GroupID: 4})
	assert.Equal(t, "group_request_reason", fieldKeys(t, err)["reason"])

	key, err := e.svc.GroupAction(ctx, v, alice.ID, profile.GroupActionInput{Action: profile.GroupRequest, GroupID: 4, Reason: "I run plots"})
	require.NoError(t, err)
	assert.Equal(t, "group_requested", key)

	_, err = e.svc.GroupAction(ctx, v, alice.ID, profile.GroupActionInput{Action: profile.GroupRequest, GroupID: 4, Reason: "again"})
	status, errKey := langKey(t, err)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "already_requested_group", errKey)

	alerts := e.queue.byPref(notify.PrefGroupRequest)
	require.Len(t, alerts, 1)
	assert.Equal(t, []int64{admin.ID}, alerts[0].Recipients, "groups without moderators alert the administrators")

	page, err := e.svc.Groups(ctx, v, alice.ID)
	require.NoError(t, err)
	require.Len(t, page.Requests, 1)
	for _, g := range page.Joinable {
		assert.Equal(t, g.ID == 4, g.Pending)
	}
	reqID := page.Requests[0].ID

	_, err = e.svc.GroupRequests(ctx, e.viewer(t, 0))
	status, _ = langKey(t, err)
	assert.Equal(t, http.StatusUnauthorized, status)

	list, err := e.svc.GroupRequests(ctx, e.viewer(t, bob.ID))
	require.NoError(t, err)
	assert.Empty(t, list)

	err = e.svc.ResolveGroupRequest(ctx, e.viewer(t, bob.ID), reqID, true, "")
	_, errKey = langKey(t, err)
	assert.Equal(t, "cannot_manage_membergroups", errKey)

	av := e.viewer(t, admin.ID)
	list, err = e.svc.GroupRequests(ctx, av)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, e.svc.ResolveGroupRequest(ctx, av, reqID, true, "welcome"))
	extra, err := e.repo.AdditionalGroups(ctx, alice.ID)
	require.NoError(t, err)
	assert.Contains(t, extra, int64(4))
	require.Len(t, e.queue.byPref(notify.PrefGroupApproved), 1)

	err = e.svc.ResolveGroupRequest(ctx, av, reqID, false, "")
	_, errKey = langKey(t, err)
	assert.Equal(t, "no_such_request", errKey, "resolved requests cannot be resolved again")
}

func TestIssueWarning(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	admin := e.member(t, "admin", models.GroupAdministrator)
	mod := e.member(t, "mod", 0, 2)
	alice := e.member(t, "alice", 0)
	mv := e.viewer(t, mod.ID)

	form, err := e.svc.WarningForm(ctx, mv, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, form.Min)
	assert.Equal(t, 20, form.Max)

	_, err = e.svc.IssueWarning(ctx, mv, alice.ID, profile.WarningInput{Level: 10})
	assert.Equal(t, "warning_reason_blank", fieldKeys(t, err)["warn_reason"])

	_, err = e.svc.IssueWarning(ctx, mv, alice.ID, profile.WarningInput{Level: 10, Reason: "spam", Notify: true})
	assert.Equal(t, "warning_notify_blank", fieldKeys(t, err)["warn_body"])

	res, err := e.svc.IssueWarning(ctx, mv, alice.ID, profile.WarningInput{Level: 50, Reason: "spam"})
	require.NoError(t, err)
	assert.Equal(t, 20, res.Level, "a moderator is capped per day")
	assert.Equal(t, "watch", res.Status)

	res, err = e.svc.IssueWarning(ctx, mv, alice.ID, profile.WarningInput{Level: 40, Reason: "more spam"})
	require.NoError(t, err)
	assert.Equal(t, 20, res.Level, "the daily cap is already used")

	res, err = e.svc.IssueWarning(ctx, e.viewer(t, admin.ID), alice.ID, profile.WarningInput{
		Level: 70, Reason: "abuse", Notify: true, Subject: "Warning", Body: "Stop it.",
	})
	require.NoError(t, err)
	assert.Equal(t, 70, res.Level)
	assert.Equal(t, "mute", res.Status)

	muted := e.viewer(t, alice.ID)
	assert.True(t, muted.PostsModerated)
	assert.False(t, muted.Can("post_new"))

	assert.Len(t, e.queue.byPref(notify.PrefWarning), 3)
	mail, err := e.repo.PendingMail(ctx, 10)
	require.NoError(t, err)
	require.Len(t, mail, 1)
	assert.Equal(t, "alice@example.com", mail[0].Recipient)

	page, err := e.svc.ViewWarnings(ctx, e.viewer(t, alice.ID), alice.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 70, page.Level)
	assert.Len(t, page.Entries, 3)
	assert.Equal(t, 3, page.Page.Total)
}

func TestIssueWarningRejections(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	mod := e.member(t, "mod", 0, 2)
	alice := e.member(t, "alice", 0)
	bob := e.member(t, "bob", 0)

	_, err := e.svc.IssueWarning(ctx, e.viewer(t, mod.ID), mod.ID, profile.WarningInput{Level: 10, Reason: "x"})
	_, key := langKey(t, err)
	assert.Equal(t, "cannot_warn_self", key)

	_, err = e.svc.IssueWarning(ctx, e.viewer(t, bob.ID), alice.ID, profile.WarningInput{Level: 10, Reason: "x"})
	_, key = langKey(t, err)
	assert.Equal(t, "cannot_issue_warning", key)

	for _, id := range []int64{alice.ID, 999} {
		_, err = e.svc.WarningForm(ctx, e.viewer(t, bob.ID), id)
		status, key := langKey(t, err)
		assert.Equal(t, http.StatusForbidden, status, "member %d", id)
		assert.Equal(t, "cannot_issue_warning", key, "the permission is checked before the member lookup")
	}

	_, err = e.svc.ViewWarnings(ctx, e.viewer(t, bob.ID), alice.ID, 1)
	_, key = langKey(t, err)
	assert.Equal(t, "cannot_view_warning_any", key)

	_, err = e.settings.Update(ctx, map[string]string{"warning_settings": "0,20,0"})
	require.NoError(t, err)
	_, err = e.svc.IssueWarning(ctx, e.viewer(t, mod.ID), alice.ID, profile.WarningInput{Level: 10, Reason: "x"})
	_, key = langKey(t, err)
	assert.Equal(t, "feature_disabled", key)
}

func TestDecayWarnings(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.member(t, "alice", 0)
	_, err := e.repo.AddWarning(ctx, &models.Warning{IssuerID: 1, RecipientID: alice.ID, Time: 1000, Counter: 30, Reason: "old"}, 30)
	require.NoError(t, err)

	require.NoError(t, e.svc.DecayWarnings(ctx, nil))
	assert.Equal(t, 30, e.reload(t, alice.ID).Warning, "decay is off by default")

	_, err = e.settings.Update(ctx, map[string]string{"warning_settings": "1,20,5"})
	require.NoError(t, err)
	require.NoError(t, e.svc.DecayWarnings(ctx, nil))
	assert.Equal(t, 25, e.reload(t, alice.ID).Warning)
}

package profile_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"testing"

	dbfs "github.com/StoryBB/StoryBB-sub005/db"
	"github.com/StoryBB/StoryBB-sub005/internal/apperr"
	"github.com/StoryBB/StoryBB-sub005/internal/auth"
	"github.com/StoryBB/StoryBB-sub005/internal/customfields"
	"github.com/StoryBB/StoryBB-sub005/internal/db"
	"github.com/StoryBB/StoryBB-sub005/internal/lang"
	"github.com/StoryBB/StoryBB-sub005/internal/notify"
	"github.com/StoryBB/StoryBB-sub005/internal/payments"
	"github.com/StoryBB/StoryBB-sub005/internal/permissions"
	"github.com/StoryBB/StoryBB-sub005/internal/profile"
	"github.com/StoryBB/StoryBB-sub005/internal/repository/sqlite"
	"github.com/StoryBB/StoryBB-sub005/internal/settings"
	"github.com/StoryBB/StoryBB-sub005/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tokenSecret = "callback-secret"

type fakeQueue struct {
	events []notify.Event
}

func (f *fakeQueue) QueueAdhoc(ctx context.Context, typ string, payload any) (int64, error) {
	if ev, ok := payload.(notify.Event); ok {
		f.events = append(f.events, ev)
	}
	return int64(len(f.events)), nil
}

func (f *fakeQueue) byPref(pref string) []notify.Event {
	var out []notify.Event
	for _, ev := range f.events {
		if ev.Pref == pref {
			out = append(out, ev)
		}
	}
	return out
}

type env struct {
	svc      *profile.Service
	repo     *sqlite.SQLiteRepo
	checker  *permissions.Checker
	queue    *fakeQueue
	fields   *customfields.Validator
	settings *settings.Store
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	d, err := db.New(ctx, filepath.Join(t.TempDir(), "profile.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	require.NoError(t, db.Migrate(ctx, d, dbfs.Migrations, dbfs.SeedFiles))

	repo := sqlite.New(d, nil)
	store := settings.NewStore(repo)
	fields, err := customfields.NewValidator(ctx, repo)
	require.NoError(t, err)
	bundle, err := lang.Load()
	require.NoError(t, err)
	q := &fakeQueue{}

	svc := profile.NewService(profile.Deps{
		Store:    repo,
		Settings: store,
		Notifier: notify.NewNotifier(q),
		Fields:   fields,
		Payments: payments.NewRegistry(payments.Manual{}, payments.NewToken(tokenSecret, "https://pay.example.com/checkout")),
		Bundle:   bundle,
	})
	return &env{svc: svc, repo: repo, checker: permissions.NewChecker(repo, store), queue: q, fields: fields, settings: store}
}

// member creates an activated member whose password is "password123".
func (e *env) member(t *testing.T, name string, group int64, extra ...int64) *models.Member {
	t.Helper()
	ctx := context.Background()
	hash, err := auth.HashPassword("password123")
	require.NoError(t, err)
	m := &models.Member{Name: name, RealName: name, Email: name + "@example.com", PasswordHash: hash, PrimaryGroup: group, Activated: true, Language: "en-US"}
	_, _, err = e.repo.CreateMember(ctx, m)
	require.NoError(t, err)
	for _, g := range extra {
		require.NoError(t, e.repo.AddAdditionalGroup(ctx, m.ID, g))
	}
	return m
}

func (e *env) viewer(t *testing.T, id int64) *permissions.Viewer {
	t.Helper()
	v, err := e.checker.Viewer(context.Background(), id)
	require.NoError(t, err)
	return v
}

func (e *env) reload(t *testing.T, id int64) *models.Member {
	t.Helper()
	m, err := e.repo.GetMember(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, m)
	return m
}

func langKey(t *testing.T, err error) (int, string) {
	t.Helper()
	var le *apperr.LangError
	require.True(t, errors.As(err, &le), "expected a LangError, got %v", err)
	return le.Status, le.Key
}

func fieldKeys(t *testing.T, err error) map[string]string {
	t.Helper()
	var ve *apperr.Validation
	require.True(t, errors.As(err, &ve), "expected validation error, got %v", err)
	out := map[string]string{}
	for _, fe := range ve.Errors {
		out[fe.Field] = fe.Key
	}
	return out
}

func ptr(s string) *string { return &s }

func TestSanitize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  hello  ", "hello"},
		{"a\r\nb\rc", "a\nb\nc"},
		{"tab\tok\x00\x07", "tab\tok"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, profile.Sanitize(tt.in))
	}
}

func TestNewPage(t *testing.T) {
	p := profile.NewPage(0, 0)
	assert.Equal(t, 1, p.Number)
	assert.Equal(t, 1, p.Pages)
	assert.Equal(t, 0, p.Offset())

	p = profile.NewPage(9, 45)
	assert.Equal(t, 3, p.Pages)
	assert.Equal(t, 3, p.Number)
	assert.Equal(t, 40, p.Offset())
}

func TestLoadMemberContext(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	m := e.member(t, "alice", 4, 5)

	mc, err := e.svc.LoadMemberContext(ctx, m.ID)
	require.NoError(t, err)
	require.NotNil(t, mc.PrimaryGroup)
	assert.Equal(t, "Story Tellers", mc.PrimaryGroup.Name)
	require.Len(t, mc.Groups, 1)
	assert.Equal(t, int64(5), mc.Groups[0].ID)
	require.Len(t, mc.Characters, 1)
	assert.True(t, mc.Characters[0].IsMain)

	mc, err = e.svc.LoadMemberContext(ctx, 999)
	require.NoError(t, err)
	assert.Nil(t, mc)
}

func TestSummary(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.member(t, "alice", 0)
	bob := e.member(t, "bob", 0)
	mod := e.member(t, "mod", 0, 2)

	_, err := e.svc.IssueWarning(ctx, e.viewer(t, mod.ID), alice.ID, profile.WarningInput{Level: 15, Reason: "spam"})
	require.NoError(t, err)

	page, err := e.svc.Summary(ctx, e.viewer(t, bob.ID), alice.ID)
	require.NoError(t, err)
	assert.Empty(t, page.Member.Email)
	assert.Nil(t, page.Warning, "regular members cannot see other members' warnings")
	assert.Zero(t, page.Member.Warning)
	assert.False(t, page.IsOwner)
	raw, err := json.Marshal(page)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), `"warning"`)

	page, err = e.svc.Summary(ctx, e.viewer(t, alice.ID), alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", page.Member.Email)
	require.NotNil(t, page.Warning)
	assert.Equal(t, 15, page.Warning.Level)
	assert.Equal(t, 15, page.Member.Warning)

	page, err = e.svc.Summary(ctx, e.viewer(t, mod.ID), alice.ID)
	require.NoError(t, err)
	require.NotNil(t, page.Warning)
	assert.Equal(t, 15, page.Warning.Level)

	_, err = e.svc.Summary(ctx, e.viewer(t, 0), 999)
	status, key := langKey(t, err)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_a_user", key)
}

func TestSaveAccount(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.member(t, "alice", 0)
	e.member(t, "bob", 0)
	v := e.viewer(t, alice.ID)

	_, err := e.svc.SaveAccount(ctx, v, alice.ID, profile.AccountInput{
		MemberName: ptr("alice2"),
		RealName:   ptr("Bob"),
		Email:      ptr("not-an-email"),
		Password:   "short",
		Confirm:    "short",
	})
	keys := fieldKeys(t, err)
	assert.Equal(t, "no_access", keys["member_name"])
	assert.Equal(t, "name_taken", keys["real_name"])
	assert.Equal(t, "email_invalid", keys["email_address"])
	assert.Equal(t, "password_short", keys["passwrd1"])
	assert.Equal(t, "bad_password", keys["oldpasswrd"])
	assert.Equal(t, "alice", e.reload(t, alice.ID).RealName, "nothing is saved when validation fails")

	changes, err := e.svc.SaveAccount(ctx, v, alice.ID, profile.AccountInput{
		RealName:    ptr("Alice Liddell"),
		Email:       ptr("alice@wonderland.example"),
		OldPassword: "password123",
		Password:    "newpassword",
		Confirm:     "newpassword",
	})
	require.NoError(t, err)
	require.Len(t, changes, 3)
	m := e.reload(t, alice.ID)
	assert.Equal(t, "Alice Liddell", m.RealName)
	assert.Equal(t, "alice@wonderland.example", m.Email)
	assert.True(t, auth.CheckPassword(m.PasswordHash, "newpassword"))

	n, err := e.repo.CountActions(ctx, models.LogProfile, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestSaveAccountPermissions(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.member(t, "alice", 0)
	bob := e.member(t, "bob", 0)
	admin := e.member(t, "admin", models.GroupAdministrator)

	_, err := e.svc.SaveAccount(ctx, e.viewer(t, bob.ID), alice.ID, profile.AccountInput{RealName: ptr("Hacked")})
	_, key := langKey(t, err)
	assert.Equal(t, "cannot_profile_identity_any", key)

	// administrators change other accounts without the current password
	_, err = e.svc.SaveAccount(ctx, e.viewer(t, admin.ID), alice.ID, profile.AccountInput{
		MemberName: ptr("alice_l"),
		Email:      ptr("a@example.org"),
	})
	require.NoError(t, err)
	m := e.reload(t, alice.ID)
	assert.Equal(t, "alice_l", m.Name)
	assert.Equal(t, "a@example.org", m.Email)
}

func TestSaveForumProfile(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.member(t, "alice", 0)
	v := e.viewer(t, alice.ID)

	_, err := e.repo.CreateCustomField(ctx, &models.CustomField{ColName: "house", Name: "House", Type: customfields.TypeSelect, Options: "Red,Blue", Active: true})
	require.NoError(t, err)
	_, err = e.repo.CreateCustomField(ctx, &models.CustomField{ColName: "note", Name: "Note", Type: customfields.TypeText, Private: models.FieldAdminOnly, Active: true})
	require.NoError(t, err)
	require.NoError(t, e.fields.Reload(ctx))

	long := make([]byte, 400)
	for i := range long {
		long[i] = 'x'
	}
	_, err = e.svc.SaveForumProfile(ctx, v, alice.ID, profile.ForumProfileInput{
		PersonalText: ptr("this personal text is far too long to fit in fifty characters"),
		Signature:    ptr(string(long)),
		Avatar:       ptr("javascript:alert(1)"),
		CustomFields: map[string]string{"house": "Green"},
	})
	keys := fieldKeys(t, err)
	assert.Equal(t, "field_too_long", keys["personal_text"])
	assert.Equal(t, "field_too_long", keys["signature"])
	assert.Equal(t, "url_invalid", keys["avatar"])
	assert.Equal(t, "field_not_in_options", keys["customfield[house]"])

	_, err = e.svc.SaveForumProfile(ctx, v, alice.ID, profile.ForumProfileInput{CustomFields: map[string]string{"note": "x"}})
	assert.Equal(t, "no_access", fieldKeys(t, err)["customfield[note]"])

	changes, err := e.svc.SaveForumProfile(ctx, v, alice.ID, profile.ForumProfileInput{
		PersonalText: ptr("Curiouser"),
		Avatar:       ptr("https://example.com/a.png"),
		CustomFields: map[string]string{"house": "Blue"},
	})
	require.NoError(t, err)
	assert.Len(t, changes, 3)

	page, err := e.svc.ForumProfile(ctx, v, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "Curiouser", page.Member.PersonalText)
	assert.Equal(t, "Blue", page.Values["house"])
	_, hidden := page.Values["note"]
	assert.False(t, hidden)
}

func TestSavePreferences(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.member(t, "alice", 0)
	v := e.viewer(t, alice.ID)

	_, err := e.svc.SavePreferences(ctx, v, alice.ID, profile.PreferencesInput{
		Language: ptr("xx-YY"),
		Timezone: ptr("Mars/Olympus"),
	})
	keys := fieldKeys(t, err)
	assert.Equal(t, "language_unknown", keys["lngfile"])
	assert.Equal(t, "timezone_unknown", keys["timezone"])

	changes, err := e.svc.SavePreferences(ctx, v, alice.ID, profile.PreferencesInput{
		Language:   ptr("pt-BR"),
		Timezone:   ptr("America/Sao_Paulo"),
		TimeFormat: ptr("%d/%m/%Y"),
	})
	require.NoError(t, err)
	assert.Len(t, changes, 3)
	m := e.reload(t, alice.ID)
	assert.Equal(t, "pt-BR", m.Language)
	assert.Equal(t, "America/Sao_Paulo", m.Timezone)

	page, err := e.svc.Preferences(ctx, v, alice.ID)
	require.NoError(t, err)
	assert.Contains(t, page.Languages, "pt-BR")
}

func TestNotifications(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.member(t, "alice", 0)
	v := e.viewer(t, alice.ID)

	err := e.svc.SaveNotifications(ctx, v, alice.ID, map[string]int{"warn_any": 2, "bogus": 1, "buddy_request": 7})
	keys := fieldKeys(t, err)
	assert.Equal(t, "alert_forced", keys["alert[warn_any]"])
	assert.Equal(t, "alert_type_unknown", keys["alert[bogus]"])
	assert.Equal(t, "alert_value_invalid", keys["alert[buddy_request]"])

	require.NoError(t, e.svc.SaveNotifications(ctx, v, alice.ID, map[string]int{"buddy_request": 0, "warn_any": 3}))
	topicID, _, err := e.repo.CreatePost(ctx, &models.Message{BoardID: 1, MemberID: alice.ID, CharacterID: alice.CurrentCharacter, Subject: "Hello", Body: "First", Approved: true})
	require.NoError(t, err)
	require.NoError(t, e.repo.SetTopicWatch(ctx, alice.ID, topicID, true))
	require.NoError(t, e.repo.SetBoardWatch(ctx, alice.ID, 3, true))

	page, err := e.svc.Notifications(ctx, v, alice.ID)
	require.NoError(t, err)
	require.Len(t, page.Prefs, len(notify.Types))
	for _, p := range page.Prefs {
		switch p.Type {
		case "buddy_request":
			assert.Equal(t, 0, p.Value)
		case "warn_any":
			assert.Equal(t, 3, p.Value)
			assert.True(t, p.Forced)
		}
	}

	assert.Len(t, page.WatchedTopics, 1)
	assert.Len(t, page.WatchedBoards, 1)

	require.NoError(t, e.svc.Unwatch(ctx, v, alice.ID, profile.UnwatchInput{Topics: []int64{topicID}, Boards: []int64{3}}))
	page, err = e.svc.Notifications(ctx, v, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, page.WatchedTopics)
	assert.Empty(t, page.WatchedBoards)
}

func TestContacts(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.member(t, "alice", 0)
	bob := e.member(t, "bob", 0)
	e.member(t, "carol", 0)
	v := e.viewer(t, alice.ID)

	_, err := e.svc.AddContacts(ctx, v, alice.ID, models.ContactBuddy, "bob, nobody")
	assert.Equal(t, "unknown_members", fieldKeys(t, err)["names"])

	_, err = e.svc.AddContacts(ctx, v, alice.ID, models.ContactBuddy, "alice")
	assert.Equal(t, "cannot_add_self", fieldKeys(t, err)["names"])

	added, err := e.svc.AddContacts(ctx, v, alice.ID, models.ContactBuddy, "BOB, carol, bob")
	require.NoError(t, err)
	assert.Len(t, added, 2)
	require.Len(t, e.queue.byPref(notify.PrefBuddyRequest), 1)
	assert.Len(t, e.queue.byPref(notify.PrefBuddyRequest)[0].Recipients, 2)

	added, err = e.svc.AddContacts(ctx, v, alice.ID, models.ContactBuddy, "bob")
	require.NoError(t, err)
	assert.Empty(t, added, "existing buddies are skipped")

	list, err := e.svc.Contacts(ctx, v, alice.ID, models.ContactBuddy)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	require.NoError(t, e.svc.RemoveContact(ctx, v, alice.ID, models.ContactBuddy, bob.ID))
	err = e.svc.RemoveContact(ctx, v, alice.ID, models.ContactBuddy, bob.ID)
	_, key := langKey(t, err)
	assert.Equal(t, "no_such_contact", key)

	_, err = e.svc.Contacts(ctx, e.viewer(t, bob.ID), alice.ID, models.ContactBuddy)
	status, _ := langKey(t, err)
	assert.Equal(t, http.StatusForbidden, status)

	_, err = e.svc.AddContacts(ctx, v, alice.ID, models.ContactIgnore, "bob")
	require.NoError(t, err)
	assert.Len(t, e.queue.byPref(notify.PrefBuddyRequest), 1, "ignoring does not alert")
}

func TestIgnoreBoards(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.member(t, "alice", 0)
	v := e.viewer(t, alice.ID)

	err := e.svc.SaveIgnoreBoards(ctx, v, alice.ID, []int64{2})
	_, key := langKey(t, err)
	assert.Equal(t, "no_such_board", key, "staff boards are not visible to regular members")

	require.NoError(t, e.svc.SaveIgnoreBoards(ctx, v, alice.ID, []int64{3, 3}))
	boards, err := e.svc.IgnoreBoards(ctx, v, alice.ID)
	require.NoError(t, err)
	require.Len(t, boards, 2)
	for _, b := range boards {
		assert.Equal(t, b.Board.ID == 3, b.Ignored)
	}
}

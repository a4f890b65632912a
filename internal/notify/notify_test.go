package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	dbfs "github.com/StoryBB/StoryBB-sub005/db"
	"github.com/StoryBB/StoryBB-sub005/internal/db"
	"github.com/StoryBB/StoryBB-sub005/internal/lang"
	"github.com/StoryBB/StoryBB-sub005/internal/notify"
	"github.com/StoryBB/StoryBB-sub005/internal/repository/sqlite"
	"github.com/StoryBB/StoryBB-sub005/internal/tasks"
	"github.com/StoryBB/StoryBB-sub005/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type queued struct {
	typ     string
	payload any
}

type fakeQueue struct {
	items []queued
}

func (f *fakeQueue) QueueAdhoc(ctx context.Context, typ string, payload any) (int64, error) {
	f.items = append(f.items, queued{typ, payload})
	return int64(len(f.items)), nil
}

func setup(t *testing.T) *sqlite.SQLiteRepo {
	t.Helper()
	ctx := context.Background()
	d, err := db.New(ctx, filepath.Join(t.TempDir(), "notify.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	require.NoError(t, db.Migrate(ctx, d, dbfs.Migrations, dbfs.SeedFiles))
	return sqlite.New(d, nil)
}

func member(t *testing.T, repo *sqlite.SQLiteRepo, name string) *models.Member {
	t.Helper()
	m := &models.Member{Name: name, RealName: name, Email: name + "@example.com", PasswordHash: "x", Activated: true, Language: "en-US"}
	_, _, err := repo.CreateMember(context.Background(), m)
	require.NoError(t, err)
	return m
}

func task(t *testing.T, ev notify.Event) *tasks.Task {
	t.Helper()
	b, err := json.Marshal(ev)
	require.NoError(t, err)
	return &tasks.Task{Type: tasks.TypeAlertDispatch, Payload: b}
}

func TestNotifierQueues(t *testing.T) {
	q := &fakeQueue{}
	n := notify.NewNotifier(q)
	ctx := context.Background()

	require.NoError(t, n.Notify(ctx, notify.Event{Pref: notify.PrefBuddyRequest}))
	assert.Empty(t, q.items, "no recipients, nothing queued")

	require.Error(t, n.Notify(ctx, notify.Event{Pref: "bogus", Recipients: []int64{1}}))

	require.NoError(t, n.Notify(ctx, notify.Event{Pref: notify.PrefBuddyRequest, Recipients: []int64{2}}))
	require.Len(t, q.items, 1)
	assert.Equal(t, tasks.TypeAlertDispatch, q.items[0].typ)
}

func TestEffectiveForcesSiteBit(t *testing.T) {
	assert.Equal(t, models.AlertSite, notify.Effective(notify.PrefWarning, 0))
	assert.Equal(t, 0, notify.Effective(notify.PrefBuddyRequest, 0))
	assert.Equal(t, 3, notify.Effective(notify.PrefWarning, models.AlertEmail))
}

func TestDispatchHonoursPreferences(t *testing.T) {
	repo := setup(t)
	ctx := context.Background()
	bundle, err := lang.Load()
	require.NoError(t, err)

	actor := member(t, repo, "Actor")
	siteOnly := member(t, repo, "SiteOnly")
	both := member(t, repo, "Both")
	off := member(t, repo, "Off")
	ignorer := member(t, repo, "Ignorer")

	require.NoError(t, repo.SetAlertPrefs(ctx, both.ID, map[string]int{notify.PrefBuddyRequest: 3}))
	require.NoError(t, repo.SetAlertPrefs(ctx, off.ID, map[string]int{notify.PrefBuddyRequest: 0}))
	require.NoError(t, repo.AddContacts(ctx, ignorer.ID, models.ContactIgnore, []int64{actor.ID}))

	q := &fakeQueue{}
	d := notify.NewDispatcher(repo, bundle, q)
	err = d.Handle(ctx, task(t, notify.Event{
		Pref:        notify.PrefBuddyRequest,
		Recipients:  []int64{siteOnly.ID, both.ID, off.ID, ignorer.ID, actor.ID, 9999},
		StartedBy:   actor.ID,
		ActorName:   "Actor",
		ContentType: "member",
		ContentID:   actor.ID,
		Action:      "buddy_request",
	}))
	require.NoError(t, err)

	count := func(id int64) int {
		n, err := repo.CountAlerts(ctx, id, true)
		require.NoError(t, err)
		return n
	}
	assert.Equal(t, 1, count(siteOnly.ID))
	assert.Equal(t, 1, count(both.ID))
	assert.Equal(t, 0, count(off.ID))
	assert.Equal(t, 0, count(ignorer.ID))
	assert.Equal(t, 0, count(actor.ID))

	mail, err := repo.PendingMail(ctx, 10)
	require.NoError(t, err)
	require.Len(t, mail, 1)
	assert.Equal(t, both.Email, mail[0].Recipient)
	assert.Equal(t, "Actor added you as a buddy.", mail[0].Body)
	require.Len(t, q.items, 1)
	assert.Equal(t, tasks.TypeMailFlush, q.items[0].typ)
}

func TestDispatchForcedIgnoresPreference(t *testing.T) {
	repo := setup(t)
	ctx := context.Background()

	mod := member(t, repo, "Mod")
	target := member(t, repo, "Target")
	require.NoError(t, repo.SetAlertPrefs(ctx, target.ID, map[string]int{notify.PrefWarning: 0}))
	require.NoError(t, repo.AddContacts(ctx, target.ID, models.ContactIgnore, []int64{mod.ID}))

	d := notify.NewDispatcher(repo, nil, nil)
	require.NoError(t, d.Handle(ctx, task(t, notify.Event{Pref: notify.PrefWarning, Recipients: []int64{target.ID}, StartedBy: mod.ID})))

	n, err := repo.CountAlerts(ctx, target.ID, true)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

// flakyRepo fails the first delivery to one member.
type flakyRepo struct {
	*sqlite.SQLiteRepo
	failFor int64
	failed  bool
}

func (f *flakyRepo) DeliverAlert(ctx context.Context, a *models.Alert, m *models.MailItem) error {
	if a != nil && a.MemberID == f.failFor && !f.failed {
		f.failed = true
		return errors.New("database is locked")
	}
	return f.SQLiteRepo.DeliverAlert(ctx, a, m)
}

func TestDispatchRetryServesEachRecipientOnce(t *testing.T) {
	repo := setup(t)
	ctx := context.Background()
	alice := member(t, repo, "Alice")
	bob := member(t, repo, "Bob")
	carol := member(t, repo, "Carol")

	d := notify.NewDispatcher(&flakyRepo{SQLiteRepo: repo, failFor: bob.ID}, nil, nil)
	tk := task(t, notify.Event{Pref: notify.PrefWarning, Recipients: []int64{alice.ID, bob.ID, carol.ID}, Extra: map[string]string{"level": "10"}})

	require.Error(t, d.Handle(ctx, tk))
	var left notify.Event
	require.NoError(t, tk.Decode(&left))
	assert.Equal(t, []int64{bob.ID, carol.ID}, left.Recipients)
	assert.Equal(t, notify.PrefWarning, left.Pref)

	require.NoError(t, d.Handle(ctx, tk))
	for _, m := range []*models.Member{alice, bob, carol} {
		n, err := repo.CountAlerts(ctx, m.ID, true)
		require.NoError(t, err)
		assert.Equal(t, 1, n, "alerts for %s", m.Name)
	}
	alerts, err := repo.ListAlerts(ctx, alice.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.JSONEq(t, `{"level":"10"}`, alerts[0].Extra)
}

func TestDispatchBadPayloadIsPermanent(t *testing.T) {
	d := notify.NewDispatcher(nil, nil, nil)
	err := d.Handle(context.Background(), &tasks.Task{Payload: json.RawMessage(`{"recipients":"x"}`)})
	assert.True(t, errors.Is(err, tasks.ErrPermanent))
}

type failingMailer struct{ sent []string }

func (f *failingMailer) Send(ctx context.Context, from string, m models.MailItem) error {
	if m.Recipient == "bad@example.com" {
		return errors.New("smtp down")
	}
	f.sent = append(f.sent, m.Recipient)
	return nil
}

func TestFlusher(t *testing.T) {
	repo := setup(t)
	ctx := context.Background()

	_, err := repo.QueueMail(ctx, &models.MailItem{Recipient: "a@example.com", Subject: "s", Body: "b"})
	require.NoError(t, err)
	_, err = repo.QueueMail(ctx, &models.MailItem{Recipient: "bad@example.com", Subject: "s", Body: "b"})
	require.NoError(t, err)

	m := &failingMailer{}
	f := notify.NewFlusher(repo, m, "forum@example.com")
	require.Error(t, f.Handle(ctx, nil))
	assert.Equal(t, []string{"a@example.com"}, m.sent)

	pending, err := repo.PendingMail(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "bad@example.com", pending[0].Recipient)

	require.NoError(t, notify.NewFlusher(repo, nil, "forum@example.com").Handle(ctx, nil))
	pending, err = repo.PendingMail(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

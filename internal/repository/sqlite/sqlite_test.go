package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	dbfs "github.com/StoryBB/StoryBB-sub005/db"
	dbpkg "github.com/StoryBB/StoryBB-sub005/internal/db"
	sqlite "github.com/StoryBB/StoryBB-sub005/internal/repository/sqlite"
	"github.com/StoryBB/StoryBB-sub005/pkg/models"
)

func setupRepo(t *testing.T) (*sqlite.SQLiteRepo, func()) {
	t.Helper()
	ctx := context.Background()
	d, err := dbpkg.New(ctx, filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	if err := dbpkg.Migrate(ctx, d, dbfs.Migrations, dbfs.SeedFiles); err != nil {
		d.Close()
		t.Fatalf("failed to migrate: %v", err)
	}
	return sqlite.New(d, nil), func() { d.Close() }
}

func createMember(t *testing.T, repo *sqlite.SQLiteRepo, name string) *models.Member {
	t.Helper()
	m := &models.Member{Name: name, RealName: name, Email: name + "@example.com", PasswordHash: "hash", Activated: true}
	if _, _, err := repo.CreateMember(context.Background(), m); err != nil {
		t.Fatalf("CreateMember(%s): %v", name, err)
	}
	return m
}

func TestMemberCRUD(t *testing.T) {
	repo, cleanup := setupRepo(t)
	defer cleanup()
	ctx := context.Background()

	if _, _, err := repo.CreateMember(ctx, nil); err == nil {
		t.Fatalf("expected error when creating nil member")
	}

	got, err := repo.GetMember(ctx, 9999)
	if err != nil || got != nil {
		t.Fatalf("expected nil, nil for missing member, got %#v, %v", got, err)
	}

	m := createMember(t, repo, "Alice")
	if m.ID == 0 || m.CurrentCharacter == 0 {
		t.Fatalf("expected ids to be set, got %#v", m)
	}

	main, err := repo.MainCharacter(ctx, m.ID)
	if err != nil || main == nil {
		t.Fatalf("MainCharacter: %v %#v", err, main)
	}
	if !main.IsMain || main.Name != "Alice" || main.ID != m.CurrentCharacter {
		t.Fatalf("unexpected main character %#v", main)
	}

	byLogin, err := repo.GetMemberByLogin(ctx, "alice@example.com")
	if err != nil || byLogin == nil || byLogin.ID != m.ID {
		t.Fatalf("GetMemberByLogin by email: %v %#v", err, byLogin)
	}
	byLogin, err = repo.GetMemberByLogin(ctx, "ALICE")
	if err != nil || byLogin == nil {
		t.Fatalf("GetMemberByLogin should be case-insensitive: %v", err)
	}

	taken, err := repo.MemberNameTaken(ctx, "alice", 0)
	if err != nil || !taken {
		t.Fatalf("expected alice to be taken: %v", err)
	}
	taken, err = repo.MemberNameTaken(ctx, "alice", m.ID)
	if err != nil || taken {
		t.Fatalf("own name should not count as taken: %v", err)
	}

	m.PersonalText = "hello"
	m.Timezone = "Europe/Lisbon"
	if err := repo.UpdateMember(ctx, m); err != nil {
		t.Fatalf("UpdateMember: %v", err)
	}
	got, _ = repo.GetMember(ctx, m.ID)
	if got.PersonalText != "hello" || got.Timezone != "Europe/Lisbon" {
		t.Fatalf("update not persisted: %#v", got)
	}

	found, err := repo.FindMembersByName(ctx, []string{"ALICE", "nobody"})
	if err != nil || len(found) != 1 {
		t.Fatalf("FindMembersByName: %v %d", err, len(found))
	}
}

func TestCharactersAndMerge(t *testing.T) {
	repo, cleanup := setupRepo(t)
	defer cleanup()
	ctx := context.Background()

	src := createMember(t, repo, "Source")
	dst := createMember(t, repo, "Dest")

	alt := &models.Character{MemberID: src.ID, Name: "Wanderer"}
	if _, err := repo.CreateCharacter(ctx, alt); err != nil {
		t.Fatalf("CreateCharacter: %v", err)
	}
	taken, err := repo.CharacterNameTaken(ctx, "wanderer", 0)
	if err != nil || !taken {
		t.Fatalf("expected character name taken: %v", err)
	}

	srcMain, _ := repo.MainCharacter(ctx, src.ID)
	if _, _, err := repo.CreatePost(ctx, &models.Message{BoardID: 1, MemberID: src.ID, CharacterID: srcMain.ID, Subject: "Hi", Body: "OOC", Approved: true}); err != nil {
		t.Fatalf("CreatePost: %v", err)
	}
	if _, _, err := repo.CreatePost(ctx, &models.Message{BoardID: 3, MemberID: src.ID, CharacterID: alt.ID, Subject: "IC", Body: "IC", Approved: true}); err != nil {
		t.Fatalf("CreatePost: %v", err)
	}

	if err := repo.MergeMembers(ctx, src.ID, dst.ID); err != nil {
		t.Fatalf("MergeMembers: %v", err)
	}

	gone, _ := repo.GetMember(ctx, src.ID)
	if gone != nil {
		t.Fatalf("source member should be deleted")
	}
	chars, err := repo.ListCharacters(ctx, dst.ID)
	if err != nil {
		t.Fatalf("ListCharacters: %v", err)
	}
	if len(chars) != 2 || !chars[0].IsMain || chars[1].Name != "Wanderer" {
		t.Fatalf("unexpected characters after merge: %#v", chars)
	}
	if chars[0].Posts != 1 {
		t.Fatalf("expected main character posts to be summed, got %d", chars[0].Posts)
	}
	merged, _ := repo.GetMember(ctx, dst.ID)
	if merged.Posts != 2 {
		t.Fatalf("expected 2 posts on destination, got %d", merged.Posts)
	}
	n, err := repo.CountMessagesByMember(ctx, dst.ID, 0, []int64{1, 2, 3})
	if err != nil || n != 2 {
		t.Fatalf("expected 2 messages reassigned, got %d (%v)", n, err)
	}
}

func TestDeleteCharacterResetsCurrent(t *testing.T) {
	repo, cleanup := setupRepo(t)
	defer cleanup()
	ctx := context.Background()

	m := createMember(t, repo, "Bob")
	c := &models.Character{MemberID: m.ID, Name: "Shadow"}
	if _, err := repo.CreateCharacter(ctx, c); err != nil {
		t.Fatalf("CreateCharacter: %v", err)
	}
	if err := repo.SetCurrentCharacter(ctx, m.ID, c.ID); err != nil {
		t.Fatalf("SetCurrentCharacter: %v", err)
	}
	if _, err := repo.CreateSheetVersion(ctx, &models.SheetVersion{CharacterID: c.ID, MemberID: m.ID, Text: "sheet"}); err != nil {
		t.Fatalf("CreateSheetVersion: %v", err)
	}
	if err := repo.DeleteCharacter(ctx, c.ID); err != nil {
		t.Fatalf("DeleteCharacter: %v", err)
	}
	got, _ := repo.GetMember(ctx, m.ID)
	main, _ := repo.MainCharacter(ctx, m.ID)
	if got.CurrentCharacter != main.ID {
		t.Fatalf("expected current character reset to main (%d), got %d", main.ID, got.CurrentCharacter)
	}
	if v, _ := repo.LatestSheetVersion(ctx, c.ID); v != nil {
		t.Fatalf("expected sheet versions removed")
	}
}

func TestWarningsAndDecay(t *testing.T) {
	repo, cleanup := setupRepo(t)
	defer cleanup()
	ctx := context.Background()

	mod := createMember(t, repo, "Mod")
	target := createMember(t, repo, "Target")

	if _, err := repo.AddWarning(ctx, &models.Warning{IssuerID: mod.ID, IssuerName: "Mod", RecipientID: target.ID, Counter: 15, Reason: "spam"}, 15); err != nil {
		t.Fatalf("AddWarning: %v", err)
	}
	pts, err := repo.WarningPointsSince(ctx, mod.ID, target.ID, 0)
	if err != nil || pts != 15 {
		t.Fatalf("WarningPointsSince = %d, %v", pts, err)
	}
	got, _ := repo.GetMember(ctx, target.ID)
	if got.Warning != 15 {
		t.Fatalf("expected warning 15, got %d", got.Warning)
	}

	// recently warned members are not decayed
	n, err := repo.DecayWarnings(ctx, 5, 0)
	if err != nil || n != 0 {
		t.Fatalf("DecayWarnings recent = %d, %v", n, err)
	}
	n, err = repo.DecayWarnings(ctx, 5, 1<<40)
	if err != nil || n != 1 {
		t.Fatalf("DecayWarnings = %d, %v", n, err)
	}
	got, _ = repo.GetMember(ctx, target.ID)
	if got.Warning != 10 {
		t.Fatalf("expected warning 10 after decay, got %d", got.Warning)
	}

	list, err := repo.ListWarnings(ctx, target.ID, 10, 0)
	if err != nil || len(list) != 1 || list[0].IssuerName != "Mod" {
		t.Fatalf("ListWarnings: %v %#v", err, list)
	}
}

func TestAlertPrefsOverlayDefaults(t *testing.T) {
	repo, cleanup := setupRepo(t)
	defer cleanup()
	ctx := context.Background()

	m := createMember(t, repo, "Carol")
	prefs, err := repo.AlertPrefs(ctx, m.ID)
	if err != nil {
		t.Fatalf("AlertPrefs: %v", err)
	}
	if prefs["warn_any"] != 3 {
		t.Fatalf("expected forum default for warn_any, got %d", prefs["warn_any"])
	}
	if err := repo.SetAlertPrefs(ctx, m.ID, map[string]int{"warn_any": 1}); err != nil {
		t.Fatalf("SetAlertPrefs: %v", err)
	}
	prefs, _ = repo.AlertPrefs(ctx, m.ID)
	if prefs["warn_any"] != 1 {
		t.Fatalf("expected member override, got %d", prefs["warn_any"])
	}
}

func TestSubscriptionLifecycle(t *testing.T) {
	repo, cleanup := setupRepo(t)
	defer cleanup()
	ctx := context.Background()

	m := createMember(t, repo, "Dave")
	sub := &models.Subscription{Name: "Patron", CostCents: 500, Currency: "usd", LengthDays: 30, GroupID: 5, Active: true}
	if _, err := repo.CreateSubscription(ctx, sub); err != nil {
		t.Fatalf("CreateSubscription: %v", err)
	}
	l := &models.SubscriptionLog{SubscriptionID: sub.ID, MemberID: m.ID, PaymentsPending: 1, Gateway: "manual"}
	if _, err := repo.CreateSubscriptionLog(ctx, l); err != nil {
		t.Fatalf("CreateSubscriptionLog: %v", err)
	}
	if err := repo.ActivateSubscription(ctx, l.ID, 100, 200, "ref"); err != nil {
		t.Fatalf("ActivateSubscription: %v", err)
	}
	groups, _ := repo.AdditionalGroups(ctx, m.ID)
	if len(groups) != 1 || groups[0] != 5 {
		t.Fatalf("expected subscription group granted, got %v", groups)
	}
	expired, err := repo.ExpiredSubscriptions(ctx, 300)
	if err != nil || len(expired) != 1 {
		t.Fatalf("ExpiredSubscriptions: %v %d", err, len(expired))
	}
	if err := repo.EndSubscription(ctx, l.ID); err != nil {
		t.Fatalf("EndSubscription: %v", err)
	}
	groups, _ = repo.AdditionalGroups(ctx, m.ID)
	if len(groups) != 0 {
		t.Fatalf("expected subscription group revoked, got %v", groups)
	}
}

func TestGetMember_DBError(t *testing.T) {
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer conn.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id_member, member_name`)).WithArgs(int64(7)).WillReturnError(errors.New("disk I/O error"))

	repo := sqlite.New(dbpkg.FromConn(conn, nil), nil)
	got, err := repo.GetMember(context.Background(), 7)
	if err == nil {
		t.Fatalf("expected error, got member %#v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSetSettings_RollsBackOnError(t *testing.T) {
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer conn.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO settings`)).WillReturnError(errors.New("readonly database"))
	mock.ExpectRollback()

	repo := sqlite.New(dbpkg.FromConn(conn, nil), nil)
	if err := repo.SetSettings(context.Background(), map[string]string{"warning_mute": "70"}); err == nil {
		t.Fatalf("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestResolveGroupRequest_RollsBackOnGrantError(t *testing.T) {
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer conn.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE log_group_requests`)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT OR IGNORE INTO member_groups_extra`)).WillReturnError(errors.New("database is locked"))
	mock.ExpectRollback()

	repo := sqlite.New(dbpkg.FromConn(conn, nil), nil)
	resolved, err := repo.ResolveGroupRequest(context.Background(), 3, models.RequestApproved, 1, "", 100)
	if err == nil || resolved {
		t.Fatalf("expected error and unresolved request, got %v %v", resolved, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGroupRequestResolveAndLeave(t *testing.T) {
	repo, cleanup := setupRepo(t)
	defer cleanup()
	ctx := context.Background()
	m := createMember(t, repo, "Alice")

	id, err := repo.CreateGroupRequest(ctx, &models.GroupRequest{MemberID: m.ID, GroupID: 4, Reason: "please"})
	if err != nil {
		t.Fatalf("CreateGroupRequest: %v", err)
	}
	resolved, err := repo.ResolveGroupRequest(ctx, id, models.RequestApproved, 1, "ok", 100)
	if err != nil || !resolved {
		t.Fatalf("ResolveGroupRequest: %v %v", resolved, err)
	}
	groups, _ := repo.AdditionalGroups(ctx, m.ID)
	if len(groups) != 1 || groups[0] != 4 {
		t.Fatalf("expected group 4 granted, got %v", groups)
	}
	resolved, err = repo.ResolveGroupRequest(ctx, id, models.RequestRejected, 1, "", 200)
	if err != nil || resolved {
		t.Fatalf("a closed request must not resolve again: %v %v", resolved, err)
	}
	req, _ := repo.GetGroupRequest(ctx, id)
	if req == nil || req.Status != models.RequestApproved {
		t.Fatalf("expected request to stay approved, got %#v", req)
	}

	if err := repo.SetPrimaryGroup(ctx, m.ID, 4); err != nil {
		t.Fatalf("SetPrimaryGroup: %v", err)
	}
	if err := repo.LeaveGroup(ctx, m.ID, 4); err != nil {
		t.Fatalf("LeaveGroup: %v", err)
	}
	got, _ := repo.GetMember(ctx, m.ID)
	groups, _ = repo.AdditionalGroups(ctx, m.ID)
	if got.PrimaryGroup != models.GroupRegular || len(groups) != 0 {
		t.Fatalf("expected member back in the regular group, got %d %v", got.PrimaryGroup, groups)
	}
}

func TestDeliverAlert_RollsBackWhenMailFails(t *testing.T) {
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer conn.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO user_alerts`)).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO mail_queue`)).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	repo := sqlite.New(dbpkg.FromConn(conn, nil), nil)
	err = repo.DeliverAlert(context.Background(),
		&models.Alert{MemberID: 2, ContentType: "member", ContentID: 2, Action: "warning"},
		&models.MailItem{Recipient: "b@example.com", Subject: "s", Body: "b"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

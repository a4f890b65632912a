package admin_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	dbfs "github.com/StoryBB/StoryBB-sub005/db"
	"github.com/StoryBB/StoryBB-sub005/internal/admin"
	"github.com/StoryBB/StoryBB-sub005/internal/apperr"
	"github.com/StoryBB/StoryBB-sub005/internal/customfields"
	"github.com/StoryBB/StoryBB-sub005/internal/db"
	"github.com/StoryBB/StoryBB-sub005/internal/permissions"
	"github.com/StoryBB/StoryBB-sub005/internal/repository/sqlite"
	"github.com/StoryBB/StoryBB-sub005/internal/settings"
	"github.com/StoryBB/StoryBB-sub005/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	svc    *admin.Service
	repo   *sqlite.SQLiteRepo
	fields *customfields.Validator
	admin  *permissions.Viewer
	member *permissions.Viewer
}

func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	d, err := db.New(ctx, filepath.Join(t.TempDir(), "admin.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	require.NoError(t, db.Migrate(ctx, d, dbfs.Migrations, dbfs.SeedFiles))

	repo := sqlite.New(d, nil)
	store := settings.NewStore(repo)
	fields, err := customfields.NewValidator(ctx, repo)
	require.NoError(t, err)
	checker := permissions.NewChecker(repo, store)

	viewer := func(name string, group int64) *permissions.Viewer {
		m := &models.Member{Name: name, RealName: name, Email: name + "@example.com", PrimaryGroup: group, Activated: true}
		_, _, err := repo.CreateMember(ctx, m)
		require.NoError(t, err)
		v, err := checker.Viewer(ctx, m.ID)
		require.NoError(t, err)
		return v
	}
	return &fixture{
		svc:    admin.NewService(repo, store, fields),
		repo:   repo,
		fields: fields,
		admin:  viewer("root", models.GroupAdministrator),
		member: viewer("alice", models.GroupRegular),
	}
}

func errKey(t *testing.T, err error) string {
	t.Helper()
	var le *apperr.LangError
	require.True(t, errors.As(err, &le), "expected LangError, got %v", err)
	return le.Key
}

func TestSettings(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.Settings(ctx, f.member)
	assert.Equal(t, "cannot_admin_forum", errKey(t, err))

	list, err := f.svc.Settings(ctx, f.admin)
	require.NoError(t, err)
	require.Len(t, list, len(settings.Definitions))
	assert.Equal(t, "warning_settings", list[0].Key)
	assert.Equal(t, "1,20,0", list[0].Value)

	changes, err := f.svc.SaveSettings(ctx, f.admin, map[string]string{"warning_mute": "70", "char_name_max": "50"})
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, "warning_mute", changes[0].Key)

	_, err = f.svc.SaveSettings(ctx, f.admin, map[string]string{"no_such_setting": "1"})
	var verr *apperr.Validation
	assert.ErrorAs(t, err, &verr)

	logs, total, err := f.svc.AdminLog(ctx, f.admin, models.LogAdmin, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, logs, 1)
	assert.Equal(t, "settings", logs[0].Action)

	_, _, err = f.svc.AdminLog(ctx, f.admin, models.LogProfile, 10, 0)
	assert.Equal(t, "invalid_request", errKey(t, err))
}

func TestCustomFields(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	def := models.CustomField{ColName: "pronouns", Name: "Pronouns", Type: customfields.TypeText, Length: 20, Active: true}

	_, err := f.svc.CreateCustomField(ctx, f.member, def)
	assert.Equal(t, "cannot_admin_forum", errKey(t, err))

	created, err := f.svc.CreateCustomField(ctx, f.admin, def)
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.Equal(t, 1, created.Order)
	require.Len(t, f.fields.Fields(), 1, "the validator picks up new definitions")

	_, err = f.svc.CreateCustomField(ctx, f.admin, def)
	var verr *apperr.Validation
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "custom_field_col_taken", verr.Errors[0].Key)

	_, err = f.svc.CreateCustomField(ctx, f.admin, models.CustomField{ColName: "Bad Name", Name: "x", Type: customfields.TypeText})
	require.ErrorAs(t, err, &verr)

	list, err := f.svc.CustomFields(ctx, f.admin)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, f.svc.DeleteCustomField(ctx, f.admin, created.ID))
	assert.Empty(t, f.fields.Fields())
	err = f.svc.DeleteCustomField(ctx, f.admin, created.ID)
	assert.Equal(t, "custom_field_not_found", errKey(t, err))
}

func TestCreatePlan(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.CreatePlan(ctx, f.admin, models.Subscription{CostCents: -1, LengthDays: -2, GroupID: 1})
	var verr *apperr.Validation
	require.ErrorAs(t, err, &verr)
	fields := map[string]string{}
	for _, fe := range verr.Errors {
		fields[fe.Field] = fe.Key
	}
	assert.Equal(t, map[string]string{
		"name":        "field_required",
		"cost_cents":  "value_out_of_range",
		"length_days": "value_out_of_range",
		"group_id":    "no_such_group",
	}, fields)

	plan, err := f.svc.CreatePlan(ctx, f.admin, models.Subscription{Name: "Gold", CostCents: 500, LengthDays: 30, GroupID: 5, Active: true})
	require.NoError(t, err)
	assert.Equal(t, "usd", plan.Currency, "the forum currency is the default")

	plans, err := f.svc.Plans(ctx, f.admin)
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.Equal(t, "Gold", plans[0].Name)

	_, err = f.svc.Plans(ctx, f.member)
	assert.Equal(t, "cannot_admin_forum", errKey(t, err))
}

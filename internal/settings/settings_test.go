package settings_test

import (
	"context"
	"errors"
	"testing"

	"github.com/StoryBB/StoryBB-sub005/internal/apperr"
	"github.com/StoryBB/StoryBB-sub005/internal/settings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memRepo struct {
	values map[string]string
	saved  map[string]string
}

func (m *memRepo) AllSettings(ctx context.Context) (map[string]string, error) {
	out := map[string]string{}
	for k, v := range m.values {
		out[k] = v
	}
	return out, nil
}

func (m *memRepo) SetSettings(ctx context.Context, values map[string]string) error {
	m.saved = values
	for k, v := range values {
		m.values[k] = v
	}
	return nil
}

func TestLoadAppliesDefaults(t *testing.T) {
	store := settings.NewStore(&memRepo{values: map[string]string{"warning_mute": "80"}})
	v, err := store.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 80, v.Int("warning_mute"))
	assert.Equal(t, 300, v.Int("max_signature_length"))

	w := v.Warning()
	assert.True(t, w.Enabled)
	assert.Equal(t, 20, w.Cap)
	assert.Equal(t, 0, w.Decay)
}

func TestWarningStatus(t *testing.T) {
	w := settings.WarningConfig{Enabled: true, Watch: 10, Moderate: 35, Mute: 60}
	tests := []struct {
		level int
		want  string
	}{
		{0, "none"},
		{9, "none"},
		{10, "watch"},
		{35, "moderate"},
		{59, "moderate"},
		{60, "mute"},
		{100, "mute"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, w.Status(tt.level), "level %d", tt.level)
	}

	w.Enabled = false
	assert.Equal(t, "none", w.Status(100))
}

func TestUpdateValidates(t *testing.T) {
	repo := &memRepo{values: map[string]string{}}
	store := settings.NewStore(repo)

	_, err := store.Update(context.Background(), map[string]string{
		"warning_mute":  "abc",
		"warning_watch": "150",
		"bogus":         "1",
	})
	var ve *apperr.Validation
	require.True(t, errors.As(err, &ve))
	assert.Len(t, ve.Errors, 3)
	assert.Nil(t, repo.saved)
}

func TestUpdateReportsChanges(t *testing.T) {
	repo := &memRepo{values: map[string]string{"warning_mute": "60"}}
	store := settings.NewStore(repo)

	changes, err := store.Update(context.Background(), map[string]string{
		"warning_mute":     " 70 ",
		"warning_settings": "1, 10, 2",
		"warning_watch":    "10",
	})
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, settings.Change{Key: "warning_mute", Previous: "60", New: "70"}, changes[0])
	assert.Equal(t, "warning_settings", changes[1].Key)
	assert.Equal(t, "1,10,2", repo.values["warning_settings"])
}

func TestUpdateDefaultLanguage(t *testing.T) {
	repo := &memRepo{values: map[string]string{}}
	store := settings.NewStore(repo)

	for _, bad := range []string{"", "not a language", "en_US!"} {
		_, err := store.Update(context.Background(), map[string]string{"default_language": bad})
		var ve *apperr.Validation
		require.True(t, errors.As(err, &ve), "value %q", bad)
		require.Len(t, ve.Errors, 1)
		assert.Equal(t, "default_language", ve.Errors[0].Field)
		assert.Equal(t, "setting_not_language", ve.Errors[0].Key)
	}
	assert.Empty(t, repo.values["default_language"])

	changes, err := store.Update(context.Background(), map[string]string{"default_language": "pt-br"})
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, "pt-BR", repo.values["default_language"])
}

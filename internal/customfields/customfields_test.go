package customfields_test

import (
	"context"
	"errors"
	"testing"

	"github.com/StoryBB/StoryBB-sub005/internal/apperr"
	"github.com/StoryBB/StoryBB-sub005/internal/customfields"
	"github.com/StoryBB/StoryBB-sub005/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticRepo []models.CustomField

func (s staticRepo) ListCustomFields(ctx context.Context, activeOnly bool) ([]models.CustomField, error) {
	return s, nil
}

var fields = staticRepo{
	{ID: 1, ColName: "location", Name: "Location", Type: customfields.TypeText, Length: 10, Active: true},
	{ID: 2, ColName: "house", Name: "House", Type: customfields.TypeSelect, Options: "Red, Blue,Green", Active: true},
	{ID: 3, ColName: "contact", Name: "Contact", Type: customfields.TypeText, Mask: "email", Length: 100, Active: true},
	{ID: 4, ColName: "age", Name: "Age", Type: customfields.TypeText, Mask: "number", Active: true},
	{ID: 5, ColName: "adult", Name: "Adult", Type: customfields.TypeCheck, Active: true},
	{ID: 6, ColName: "staff_note", Name: "Note", Type: customfields.TypeTextarea, Private: models.FieldAdminOnly, Active: true},
	{ID: 7, ColName: "code", Name: "Code", Type: customfields.TypeText, Mask: "regex:^[A-Z]{3}$", Private: models.FieldOwnerOnly, Active: true},
}

func fieldKeys(t *testing.T, err error) map[string]string {
	t.Helper()
	var ve *apperr.Validation
	require.True(t, errors.As(err, &ve), "expected validation error, got %v", err)
	out := map[string]string{}
	for _, e := range ve.Errors {
		out[e.Field] = e.Key
	}
	return out
}

func TestValidateAcceptsGoodValues(t *testing.T) {
	v, err := customfields.NewValidator(context.Background(), fields)
	require.NoError(t, err)

	got, err := v.Validate(context.Background(), map[string]string{
		"location": " Lisbon ",
		"house":    "Blue",
		"contact":  "me@example.com",
		"age":      "42",
		"adult":    "1",
		"code":     "ABC",
	}, false)
	require.NoError(t, err)
	assert.Equal(t, map[int64]string{1: "Lisbon", 2: "Blue", 3: "me@example.com", 4: "42", 5: "1", 7: "ABC"}, got)

	got, err = v.Validate(context.Background(), map[string]string{"contact": "", "house": ""}, false)
	require.NoError(t, err)
	assert.Equal(t, "", got[3])
}

func TestValidateRejectsBadValues(t *testing.T) {
	v, err := customfields.NewValidator(context.Background(), fields)
	require.NoError(t, err)

	_, err = v.Validate(context.Background(), map[string]string{
		"location": "far too long for this",
		"house":    "Purple",
		"contact":  "not-an-email",
		"age":      "forty",
		"adult":    "maybe",
		"code":     "abc",
	}, false)
	assert.Equal(t, map[string]string{
		"customfield[location]": "field_too_long",
		"customfield[house]":    "field_not_in_options",
		"customfield[contact]":  "email_invalid",
		"customfield[age]":      "field_invalid",
		"customfield[adult]":    "field_not_in_options",
		"customfield[code]":     "field_invalid",
	}, fieldKeys(t, err))
}

func TestValidateAdminOnlyAndUnknown(t *testing.T) {
	v, err := customfields.NewValidator(context.Background(), fields)
	require.NoError(t, err)

	_, err = v.Validate(context.Background(), map[string]string{"staff_note": "x", "nope": "y"}, false)
	assert.Equal(t, map[string]string{
		"customfield[staff_note]": "no_access",
		"customfield[nope]":       "field_invalid",
	}, fieldKeys(t, err))

	got, err := v.Validate(context.Background(), map[string]string{"staff_note": "x"}, true)
	require.NoError(t, err)
	assert.Equal(t, "x", got[6])
}

func TestCheckDefinition(t *testing.T) {
	good := models.CustomField{ColName: "favorite", Name: "Favorite", Type: customfields.TypeRadio, Options: "a,b"}
	require.NoError(t, customfields.CheckDefinition(good))

	bad := models.CustomField{ColName: "Bad Name!", Type: "blob", Mask: "regex:(", Private: 7}
	assert.Equal(t, map[string]string{
		"col_name":   "custom_field_col_invalid",
		"field_name": "field_required",
		"field_type": "custom_field_type_invalid",
		"mask":       "custom_field_mask_invalid",
		"private":    "setting_out_of_range",
	}, fieldKeys(t, customfields.CheckDefinition(bad)))

	noOpts := models.CustomField{ColName: "x", Name: "X", Type: customfields.TypeSelect}
	assert.Equal(t, map[string]string{"field_options": "custom_field_options_required"}, fieldKeys(t, customfields.CheckDefinition(noOpts)))
}

func TestVisible(t *testing.T) {
	values := map[int64]string{1: "Lisbon", 6: "note", 7: "ABC"}
	cols := func(ds []customfields.Display) []string {
		var out []string
		for _, d := range ds {
			out = append(out, d.ColName)
		}
		return out
	}
	public := customfields.Visible(fields, values, false, false)
	assert.NotContains(t, cols(public), "staff_note")
	assert.NotContains(t, cols(public), "code")

	owner := customfields.Visible(fields, values, true, false)
	assert.Contains(t, cols(owner), "code")
	assert.NotContains(t, cols(owner), "staff_note")

	admin := customfields.Visible(fields, values, false, true)
	assert.Contains(t, cols(admin), "staff_note")
	assert.Equal(t, "Lisbon", admin[0].Value)
}

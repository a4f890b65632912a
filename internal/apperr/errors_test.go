package apperr_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/StoryBB/StoryBB-sub005/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", apperr.NotFound("not_a_user"), http.StatusNotFound},
		{"permission", apperr.Permission("issue_warning"), http.StatusForbidden},
		{"wrapped", fmt.Errorf("load: %w", apperr.Conflict("char_name_taken")), http.StatusConflict},
		{"validation", apperr.Invalid("email", "invalid_email"), http.StatusUnprocessableEntity},
		{"plain", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, apperr.StatusOf(tt.err))
		})
	}
}

func TestPermissionKey(t *testing.T) {
	err := apperr.Permission("approve_char_sheet")
	assert.Equal(t, "cannot_approve_char_sheet", err.Key)
}

func TestValidationCollects(t *testing.T) {
	v := &apperr.Validation{}
	require.NoError(t, v.Err())

	v.Add("passwrd1", "password_too_short", 8)
	v.Add("email", "email_taken")
	require.Error(t, v.Err())
	assert.True(t, v.Has("email"))
	assert.False(t, v.Has("signature"))
	assert.Len(t, v.Errors, 2)

	var ve *apperr.Validation
	require.True(t, errors.As(fmt.Errorf("save: %w", v.Err()), &ve))
	assert.Equal(t, "password_too_short", ve.Errors[0].Key)
}

// AngelaMos | 2026
// response_test.go

package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestJSONError_MapsAppError(t *testing.T) {
	rec := httptest.NewRecorder()
	JSONError(rec, fmt.Errorf("wrapped: %w", DuplicateError("username")))

	assert.Equal(t, http.StatusConflict, rec.Code)
	resp := decode(t, rec)
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "DUPLICATE", resp.Error.Code)
	assert.Equal(t, "username already exists", resp.Error.Message)
}

func TestJSONError_PlainErrorIsInternal(t *testing.T) {
	rec := httptest.NewRecorder()
	JSONError(rec, errors.New("db down"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decode(t, rec)
	assert.Equal(t, "INTERNAL_ERROR", resp.Error.Code)
	assert.NotContains(t, resp.Error.Message, "db down")
}

func TestAppError_Unwrap(t *testing.T) {
	err := fmt.Errorf("op: %w", NotFoundError("account"))
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, IsAppError(err))
}

func TestFormatValidationError(t *testing.T) {
	type req struct {
		Username string `json:"username" validate:"required,min=3,username"`
		Rating   int    `json:"rating"   validate:"gte=1,lte=5"`
	}

	v := NewValidator()

	err := v.Struct(req{Username: "a!", Rating: 9})
	require.Error(t, err)

	msg := FormatValidationError(err)
	assert.Contains(t, msg, "username must be at least 3 characters")
	assert.Contains(t, msg, "rating must be at most 5")

	err = v.Struct(req{Username: "bad name", Rating: 3})
	require.Error(t, err)
	assert.Contains(t, FormatValidationError(err), "may only contain")

	assert.NoError(t, v.Struct(req{Username: "good.name-1", Rating: 3}))
}

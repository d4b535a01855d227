package validate

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type signup struct {
	Username string `json:"username" validate:"required,max=8"`
	Email    string `json:"email" validate:"required,email"`
	Note     string `validate:"omitempty,min=3"`
}

func TestStruct(t *testing.T) {
	assert.NoError(t, Struct(signup{Username: "alice", Email: "alice@x.com"}))

	err := Struct(signup{Username: "", Email: "nope", Note: "x"})
	require.Error(t, err)

	var verr *Error
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, map[string]any{
		"username": "is required",
		"email":    "must be a valid email address",
		"Note":     "must be at least 3 characters",
	}, verr.Details())
	assert.Contains(t, err.Error(), "username is required")
}

type secret struct {
	Password string `json:"password" validate:"required,maxbytes=72"`
}

func TestStruct_MaxBytes(t *testing.T) {
	assert.NoError(t, Struct(secret{Password: strings.Repeat("p", 72)}))

	err := Struct(secret{Password: strings.Repeat("p", 73)})
	var verr *Error
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, map[string]any{"password": "must be at most 72 bytes"}, verr.Details())

	// 37 runes, 74 bytes.
	assert.Error(t, Struct(secret{Password: strings.Repeat("é", 37)}))
}

func TestField(t *testing.T) {
	err := Field("avatar", "is required")
	assert.Equal(t, "avatar is required", err.Error())
}

func TestUsername(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Alice", "alice"},
		{"  BOB  ", "bob"},
		{"ａｌｉｃｅ", "alice"}, // fullwidth
		{"al\x00ice", "alice"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Username(tt.in))
		})
	}
}

func TestEmail(t *testing.T) {
	assert.Equal(t, "alice@x.com", Email("  Alice@X.com "))
}

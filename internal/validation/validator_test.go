package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type signup struct {
	Username string   `json:"username" validate:"required,min=3,max=20,username"`
	Email    string   `json:"email" validate:"required,email"`
	Tags     []string `json:"tags" validate:"max=2,dive,min=2"`
}

func TestStruct(t *testing.T) {
	tests := []struct {
		name       string
		in         signup
		wantFields map[string]string
	}{
		{
			name: "valid",
			in:   signup{Username: "jane_doe", Email: "jane@example.com"},
		},
		{
			name: "bad username characters",
			in:   signup{Username: "jane-doe", Email: "jane@example.com"},
			wantFields: map[string]string{
				"username": "Username can only contain letters, numbers, and underscores",
			},
		},
		{
			name: "missing and short",
			in:   signup{Username: "ab"},
			wantFields: map[string]string{
				"username": "username must be at least 3 characters",
				"email":    "email is required",
			},
		},
		{
			name: "too many tags and short tag",
			in:   signup{Username: "jane", Email: "jane@example.com", Tags: []string{"go", "x", "db"}},
			wantFields: map[string]string{
				"tags": "tags must contain at most 2 items",
			},
		},
		{
			name: "short tag",
			in:   signup{Username: "jane", Email: "jane@example.com", Tags: []string{"x"}},
			wantFields: map[string]string{
				"tags[0]": "tags[0] must be at least 2 characters",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Struct(tt.in)
			if tt.wantFields == nil {
				require.NoError(t, err)
				return
			}

			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalid))

			var verr *Error
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.wantFields, verr.Fields)
		})
	}
}

func TestErrorMessageIsSorted(t *testing.T) {
	err := &Error{Fields: map[string]string{"b": "second", "a": "first"}}
	assert.Equal(t, "first; second", err.Error())
}

package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type signup struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	FullName string `json:"fullName" validate:"notblank"`
}

func TestStruct(t *testing.T) {
	err := Struct(signup{Email: "bad", Password: "short", FullName: "   "})
	require.Error(t, err)
	assert.Equal(t, []string{"email", "fullName", "password"}, Fields(err))

	msg := Message(err)
	assert.Contains(t, msg, "email must be a valid email address")
	assert.Contains(t, msg, "fullName cannot be blank")

	assert.NoError(t, Struct(signup{Email: "a@memoria.test", Password: "longenough", FullName: "Ana"}))
}

func TestIsEmail(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"juan@school.edu", true},
		{"juan@", false},
		{"juan.school.edu", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsEmail(tt.in), tt.in)
	}
}

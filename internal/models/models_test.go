package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminCheckPassword(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)

	a := &Admin{Username: "admin", PasswordHash: hash}
	assert.True(t, a.CheckPassword("s3cret"))
	assert.False(t, a.CheckPassword("wrong"))

	empty := &Admin{Username: "admin"}
	assert.False(t, empty.CheckPassword(""))
}

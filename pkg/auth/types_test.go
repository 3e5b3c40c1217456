package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetPasswordAndCheck(t *testing.T) {
	u := &User{Username: "alice"}

	require.NoError(t, u.SetPassword("hunter2"))
	assert.True(t, u.HasLocalCredential)
	assert.NotEmpty(t, u.PasswordHash)
	assert.NotContains(t, u.PasswordHash, "hunter2")

	assert.True(t, u.CheckPassword("hunter2"))
	assert.False(t, u.CheckPassword("wrong"))
	assert.False(t, u.CheckPassword(""))
}

func TestCheckPasswordFederatedAccount(t *testing.T) {
	// JIT-provisioned accounts carry no usable credential and must fail the
	// password check for any input.
	u := &User{Username: "octocat", HasLocalCredential: false}

	assert.False(t, u.CheckPassword(""))
	assert.False(t, u.CheckPassword("anything"))
}

package sso

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateSignerRoundTrip(t *testing.T) {
	signer := NewStateSigner([]byte("state-secret"))

	state, err := signer.Mint()
	require.NoError(t, err)
	assert.Len(t, strings.Split(state, "."), 3)

	assert.NoError(t, signer.Verify(state))
}

func TestStateSignerMintsUniqueValues(t *testing.T) {
	signer := NewStateSigner([]byte("state-secret"))

	a, err := signer.Mint()
	require.NoError(t, err)
	b, err := signer.Mint()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestStateSignerRejectsTampering(t *testing.T) {
	signer := NewStateSigner([]byte("state-secret"))
	state, err := signer.Mint()
	require.NoError(t, err)

	tests := []struct {
		name  string
		state string
	}{
		{"empty", ""},
		{"wrong shape", "only-one-part"},
		{"padded signature", state + "AAAA"},
		{"replaced timestamp", func() string {
			parts := strings.Split(state, ".")
			return parts[0] + ".9999999999." + parts[2]
		}()},
		{"foreign secret", func() string {
			other, _ := NewStateSigner([]byte("other-secret")).Mint()
			return other
		}()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := signer.Verify(tt.state)
			var authErr *AuthenticationError
			require.ErrorAs(t, err, &authErr)
		})
	}
}

func TestStateSignerRejectsExpired(t *testing.T) {
	clock := time.Now()
	signer := NewStateSigner([]byte("state-secret")).
		WithClock(func() time.Time { return clock })

	state, err := signer.Mint()
	require.NoError(t, err)

	clock = clock.Add(StateMaxAge + time.Second)
	err = signer.Verify(state)

	var authErr *AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.Contains(t, authErr.Reason, "expired")
}

func TestStateSignerRejectsFutureTimestamp(t *testing.T) {
	clock := time.Now()
	signer := NewStateSigner([]byte("state-secret")).
		WithClock(func() time.Time { return clock })

	clock = clock.Add(time.Hour)
	state, err := signer.Mint()
	require.NoError(t, err)

	clock = clock.Add(-time.Hour)
	assert.Error(t, signer.Verify(state))
}

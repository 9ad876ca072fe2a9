package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenSource_RoundTrip(t *testing.T) {
	ts := NewTokenSource("secret")

	token, err := ts.Sign(Identity{ID: "alice", Email: "alice@example.com"})
	require.NoError(t, err)

	got, err := ts.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, Identity{ID: "alice", Email: "alice@example.com"}, got)
}

func TestTokenSource_RejectsWrongSecret(t *testing.T) {
	token, err := NewTokenSource("secret-a").Sign(Identity{ID: "alice"})
	require.NoError(t, err)

	_, err = NewTokenSource("secret-b").Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenSource_RejectsMissingSubject(t *testing.T) {
	ts := NewTokenSource("secret")
	token, err := ts.Sign(Identity{Email: "no-id@example.com"})
	require.NoError(t, err)

	_, err = ts.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenSource_RejectsGarbage(t *testing.T) {
	_, err := NewTokenSource("secret").Parse("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

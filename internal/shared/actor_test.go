package shared

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseActor(t *testing.T) {
	actor, err := ParseActor("42", " jdoe ", "Employee")
	require.NoError(t, err)
	assert.Equal(t, Actor{ID: 42, Username: "jdoe", Type: ActorEmployee}, actor)

	_, err = ParseActor("", "jdoe", "admin")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = ParseActor("abc", "jdoe", "admin")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = ParseActor("7", "jdoe", "contractor")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestParseActorUsernameLength(t *testing.T) {
	actor, err := ParseActor("7", strings.Repeat("é", MaxUsernameLength), "admin")
	require.NoError(t, err)
	assert.Equal(t, MaxUsernameLength, len([]rune(actor.Username)))

	_, err = ParseActor("7", strings.Repeat("a", MaxUsernameLength+1), "admin")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestActorContextRoundTrip(t *testing.T) {
	_, ok := ActorFromContext(context.Background())
	assert.False(t, ok)

	ctx := ContextWithActor(context.Background(), Actor{ID: 1, Username: "admin", Type: ActorAdmin})
	actor, ok := ActorFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, int64(1), actor.ID)
}

package shared

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// MaxUsernameLength matches the username columns in users and activity_logs.
const MaxUsernameLength = 50

// ActorType distinguishes admin portal users from employee portal users.
type ActorType string

const (
	ActorAdmin    ActorType = "admin"
	ActorEmployee ActorType = "employee"
	// ActorSystem is used for entries written by jobs and bootstrap scripts.
	ActorSystem ActorType = "system"
)

// Actor identifies the user performing a request. It is audit metadata and
// the subject of permission checks; it is always passed explicitly.
type Actor struct {
	ID       int64
	Username string
	Type     ActorType
}

// SystemActor returns the actor used by non-interactive callers.
func SystemActor() Actor {
	return Actor{ID: 0, Username: "system", Type: ActorSystem}
}

// ParseActorType validates a user type string.
func ParseActorType(raw string) (ActorType, error) {
	switch t := ActorType(strings.ToLower(strings.TrimSpace(raw))); t {
	case ActorAdmin, ActorEmployee:
		return t, nil
	default:
		return "", fmt.Errorf("%w: unknown user type %q", ErrValidation, raw)
	}
}

// ParseActor builds an Actor from raw request values.
func ParseActor(rawID, username, rawType string) (Actor, error) {
	rawID = strings.TrimSpace(rawID)
	if rawID == "" {
		return Actor{}, ErrUnauthenticated
	}
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		return Actor{}, fmt.Errorf("%w: invalid user id %q", ErrValidation, rawID)
	}
	username = strings.TrimSpace(username)
	if username == "" {
		return Actor{}, fmt.Errorf("%w: username required", ErrValidation)
	}
	if utf8.RuneCountInString(username) > MaxUsernameLength {
		return Actor{}, fmt.Errorf("%w: username longer than %d characters", ErrValidation, MaxUsernameLength)
	}
	actorType, err := ParseActorType(rawType)
	if err != nil {
		return Actor{}, err
	}
	return Actor{ID: id, Username: username, Type: actorType}, nil
}

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok
}

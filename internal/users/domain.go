package users

import (
	"time"

	"github.com/odyssey-erp/odyssey-hr/internal/shared"
)

// User is an account that roles can be assigned to.
type User struct {
	ID        int64            `json:"id"`
	Username  string           `json:"username"`
	Email     string           `json:"email"`
	Type      shared.ActorType `json:"user_type"`
	CreatedAt time.Time        `json:"created_at"`
}

// NewUser carries the fields needed to create an account.
type NewUser struct {
	Username string           `validate:"required,max=50"`
	Email    string           `validate:"required,email,max=100"`
	Password string           `validate:"required,min=8"`
	Type     shared.ActorType `validate:"required,oneof=admin employee"`
}

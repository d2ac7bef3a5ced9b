package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/odyssey-hr/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context) ([]User, error)
	GetUser(ctx context.Context, id int64) (User, error)
	GetByUsername(ctx context.Context, username string) (User, error)
	CreateUser(ctx context.Context, u User, passwordHash string) (User, error)
}

// Service handles user business logic.
type Service struct {
	repo     RepositoryPort
	validate *validator.Validate
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo, validate: validator.New()}
}

// ListUsers returns all users.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("users: list: %w", err)
	}
	if users == nil {
		users = []User{}
	}
	return users, nil
}

// GetUser returns a user by id.
func (s *Service) GetUser(ctx context.Context, id int64) (User, error) {
	u, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return User{}, fmt.Errorf("users: get: %w", err)
	}
	return u, nil
}

// EnsureUser returns the user named in input, creating it first when absent.
// The bool reports whether it was created.
func (s *Service) EnsureUser(ctx context.Context, input NewUser) (User, bool, error) {
	input.Username = strings.TrimSpace(input.Username)
	input.Email = strings.TrimSpace(input.Email)
	if err := s.validate.Struct(input); err != nil {
		return User{}, false, fmt.Errorf("users: %w: %v", shared.ErrValidation, err)
	}

	existing, err := s.repo.GetByUsername(ctx, input.Username)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return User{}, false, fmt.Errorf("users: ensure: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, false, fmt.Errorf("users: hash password: %w", err)
	}
	created, err := s.repo.CreateUser(ctx, User{Username: input.Username, Email: input.Email, Type: input.Type}, string(hash))
	if err != nil {
		return User{}, false, fmt.Errorf("users: ensure: %w", err)
	}
	return created, true, nil
}

package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/odyssey-erp/odyssey-hr/internal/activity"
	"github.com/odyssey-erp/odyssey-hr/internal/shared"
)

const (
	maxNameLength        = 100
	maxDescriptionLength = 500

	resourceRole = "role"
	resourceUser = "user"
)

// Reader exposes the queries available inside a snapshot.
type Reader interface {
	GetRole(ctx context.Context, id int64) (Role, error)
	GetRoleByName(ctx context.Context, name string) (Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	UserExists(ctx context.Context, userID int64) (bool, error)
	RoleIDsOf(ctx context.Context, userID int64) ([]int64, error)
	UserRoles(ctx context.Context, userID int64) ([]UserRole, error)
	UsersWithRoles(ctx context.Context, limit int) ([]int64, error)
	Generation(ctx context.Context) (int64, error)
}

// TxRepository exposes transactional operations used by the service.
type TxRepository interface {
	Reader
	InsertRole(ctx context.Context, role Role) (Role, error)
	UpdateRole(ctx context.Context, role Role) (Role, error)
	DeleteRole(ctx context.Context, id int64) error
	MarkSystem(ctx context.Context, id int64) error
	InsertAssignment(ctx context.Context, a Assignment) (bool, error)
	DeleteAssignment(ctx context.Context, userID, roleID int64) (bool, error)
	DeleteAssignmentsForRole(ctx context.Context, roleID int64) (int, error)
	RecordActivity(ctx context.Context, entry activity.Entry) error
	BumpGeneration(ctx context.Context) error
}

// RepositoryPort abstracts persistence. WithTx serialises writers; WithSnapshot
// gives fn one consistent view of roles, assignments and the generation.
// Every committed change to effective permissions bumps the generation in the
// same transaction.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	WithSnapshot(ctx context.Context, fn func(context.Context, Reader) error) error
}

// Service implements the role store and the assignment ledger.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs Service.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// CreateRole stores a new role.
func (s *Service) CreateRole(ctx context.Context, actor shared.Actor, input RoleInput) (Role, error) {
	name, err := validateName(input.Name)
	if err != nil {
		return Role{}, err
	}
	description, err := validateDescription(input.Description)
	if err != nil {
		return Role{}, err
	}
	perms, err := NewPermissionSet(input.Permissions)
	if err != nil {
		return Role{}, err
	}

	var created Role
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := ensureNameFree(ctx, tx, name, 0); err != nil {
			return err
		}
		created, err = tx.InsertRole(ctx, Role{Name: name, Description: description, Permissions: perms})
		if err != nil {
			return err
		}
		return s.record(ctx, tx, actor, fmt.Sprintf("Created role %q", created.Name), resourceRole, created.ID)
	})
	if err != nil {
		return Role{}, fmt.Errorf("rbac: create role: %w", err)
	}
	return created, nil
}

// UpdateRole applies patch to role id. A provided permission map replaces the
// whole set.
func (s *Service) UpdateRole(ctx context.Context, actor shared.Actor, id int64, patch RolePatch) (Role, error) {
	var (
		name        *string
		description *string
		perms       *PermissionSet
	)
	if patch.Name != nil {
		v, err := validateName(*patch.Name)
		if err != nil {
			return Role{}, err
		}
		name = &v
	}
	if patch.Description != nil {
		v, err := validateDescription(*patch.Description)
		if err != nil {
			return Role{}, err
		}
		description = &v
	}
	if patch.Permissions != nil {
		v, err := NewPermissionSet(*patch.Permissions)
		if err != nil {
			return Role{}, err
		}
		perms = &v
	}

	var updated Role
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		role, err := tx.GetRole(ctx, id)
		if err != nil {
			return err
		}
		if name != nil && *name != role.Name {
			if err := ensureNameFree(ctx, tx, *name, role.ID); err != nil {
				return err
			}
			role.Name = *name
		}
		if description != nil {
			role.Description = *description
		}
		grantsChange := perms != nil && !perms.Equal(role.Permissions)
		if perms != nil {
			role.Permissions = *perms
		}
		updated, err = tx.UpdateRole(ctx, role)
		if err != nil {
			return err
		}
		if grantsChange {
			if err := tx.BumpGeneration(ctx); err != nil {
				return err
			}
		}
		return s.record(ctx, tx, actor, fmt.Sprintf("Updated role %q", updated.Name), resourceRole, updated.ID)
	})
	if err != nil {
		return Role{}, fmt.Errorf("rbac: update role %d: %w", id, err)
	}
	return updated, nil
}

// DeleteRole removes a role and every assignment referencing it. System roles
// are refused with ErrProtectedRole.
func (s *Service) DeleteRole(ctx context.Context, actor shared.Actor, id int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		role, err := tx.GetRole(ctx, id)
		if err != nil {
			return err
		}
		if role.System {
			return fmt.Errorf("%w: %q is a system role", shared.ErrProtectedRole, role.Name)
		}
		detached, err := tx.DeleteAssignmentsForRole(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.DeleteRole(ctx, id); err != nil {
			return err
		}
		if detached > 0 {
			if err := tx.BumpGeneration(ctx); err != nil {
				return err
			}
		}
		msg := fmt.Sprintf("Deleted role %q (removed from %d users)", role.Name, detached)
		return s.record(ctx, tx, actor, msg, resourceRole, id)
	})
	if err != nil {
		return fmt.Errorf("rbac: delete role %d: %w", id, err)
	}
	return nil
}

// ListRoles returns every role ordered by id.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	var roles []Role
	err := s.repo.WithSnapshot(ctx, func(ctx context.Context, r Reader) error {
		var err error
		roles, err = r.ListRoles(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("rbac: list roles: %w", err)
	}
	return roles, nil
}

// GetRole returns a role by id.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	var role Role
	err := s.repo.WithSnapshot(ctx, func(ctx context.Context, r Reader) error {
		var err error
		role, err = r.GetRole(ctx, id)
		return err
	})
	if err != nil {
		return Role{}, fmt.Errorf("rbac: get role %d: %w", id, err)
	}
	return role, nil
}

// Assign grants roleID to userID. Assigning a held role succeeds without
// change; the returned bool reports whether a new assignment was made.
func (s *Service) Assign(ctx context.Context, actor shared.Actor, userID, roleID int64) (bool, error) {
	var inserted bool
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := ensureUser(ctx, tx, userID); err != nil {
			return err
		}
		role, err := tx.GetRole(ctx, roleID)
		if err != nil {
			return err
		}
		inserted, err = tx.InsertAssignment(ctx, Assignment{
			UserID:     userID,
			RoleID:     roleID,
			AssignedBy: actor.ID,
			AssignedAt: s.now().UTC(),
		})
		if err != nil {
			return err
		}
		msg := fmt.Sprintf("Assigned role %q to user %d", role.Name, userID)
		if inserted {
			if err := tx.BumpGeneration(ctx); err != nil {
				return err
			}
		} else {
			msg = fmt.Sprintf("User %d already holds role %q", userID, role.Name)
		}
		return s.record(ctx, tx, actor, msg, resourceUser, userID)
	})
	if err != nil {
		return false, fmt.Errorf("rbac: assign role %d to user %d: %w", roleID, userID, err)
	}
	return inserted, nil
}

// Unassign removes an existing assignment.
func (s *Service) Unassign(ctx context.Context, actor shared.Actor, userID, roleID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		removed, err := tx.DeleteAssignment(ctx, userID, roleID)
		if err != nil {
			return err
		}
		if !removed {
			return fmt.Errorf("%w: user %d does not hold role %d", shared.ErrNotFound, userID, roleID)
		}
		role, err := tx.GetRole(ctx, roleID)
		if err != nil {
			return err
		}
		if err := tx.BumpGeneration(ctx); err != nil {
			return err
		}
		msg := fmt.Sprintf("Removed role %q from user %d", role.Name, userID)
		return s.record(ctx, tx, actor, msg, resourceUser, userID)
	})
	if err != nil {
		return fmt.Errorf("rbac: unassign role %d from user %d: %w", roleID, userID, err)
	}
	return nil
}

// RolesOf returns the ids of the roles userID holds. Users without
// assignments, known or not, yield an empty slice.
func (s *Service) RolesOf(ctx context.Context, userID int64) ([]int64, error) {
	var ids []int64
	err := s.repo.WithSnapshot(ctx, func(ctx context.Context, r Reader) error {
		var err error
		ids, err = r.RoleIDsOf(ctx, userID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("rbac: roles of user %d: %w", userID, err)
	}
	if ids == nil {
		ids = []int64{}
	}
	return ids, nil
}

// UserRoles returns the roles userID holds with assignment metadata.
func (s *Service) UserRoles(ctx context.Context, userID int64) ([]UserRole, error) {
	var roles []UserRole
	err := s.repo.WithSnapshot(ctx, func(ctx context.Context, r Reader) error {
		if err := ensureUser(ctx, r, userID); err != nil {
			return err
		}
		var err error
		roles, err = r.UserRoles(ctx, userID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("rbac: user roles %d: %w", userID, err)
	}
	if roles == nil {
		roles = []UserRole{}
	}
	return roles, nil
}

// SeedSystemRoles inserts the built-in roles that are missing and flags
// existing ones as system roles. Existing permissions are left alone.
func (s *Service) SeedSystemRoles(ctx context.Context) error {
	actor := shared.SystemActor()
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, def := range SystemRoles() {
			existing, err := tx.GetRoleByName(ctx, def.Name)
			switch {
			case errors.Is(err, shared.ErrNotFound):
				created, err := tx.InsertRole(ctx, Role{
					Name:        def.Name,
					Description: def.Description,
					Permissions: def.Permissions,
					System:      true,
				})
				if err != nil {
					return err
				}
				msg := fmt.Sprintf("Seeded system role %q", created.Name)
				if err := s.record(ctx, tx, actor, msg, resourceRole, created.ID); err != nil {
					return err
				}
			case err != nil:
				return err
			case !existing.System:
				if err := tx.MarkSystem(ctx, existing.ID); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("rbac: seed system roles: %w", err)
	}
	return nil
}

func (s *Service) record(ctx context.Context, tx TxRepository, actor shared.Actor, description, resource string, id int64) error {
	entry, err := activity.Normalize(
		activity.NewEntry(actor, description, s.now()).On(resource, fmt.Sprint(id)),
		s.now(),
	)
	if err != nil {
		return err
	}
	return tx.RecordActivity(ctx, entry)
}

func ensureNameFree(ctx context.Context, r Reader, name string, self int64) error {
	existing, err := r.GetRoleByName(ctx, name)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		return nil
	case err != nil:
		return err
	case existing.ID != self:
		return fmt.Errorf("%w: %q", shared.ErrDuplicateName, name)
	}
	return nil
}

func ensureUser(ctx context.Context, r Reader, userID int64) error {
	ok, err := r.UserExists(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: user %d", shared.ErrNotFound, userID)
	}
	return nil
}

func validateName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", fmt.Errorf("rbac: %w: role name required", shared.ErrValidation)
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return "", fmt.Errorf("rbac: %w: role name longer than %d characters", shared.ErrValidation, maxNameLength)
	}
	return name, nil
}

func validateDescription(raw string) (string, error) {
	description := strings.TrimSpace(raw)
	if utf8.RuneCountInString(description) > maxDescriptionLength {
		return "", fmt.Errorf("rbac: %w: description longer than %d characters", shared.ErrValidation, maxDescriptionLength)
	}
	return description, nil
}

package shared

import "errors"

var (
	// ErrNotFound indicates a referenced role, user or assignment is absent.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateName indicates a role name collision.
	ErrDuplicateName = errors.New("duplicate name")
	// ErrInvalidPermissionKey indicates a key outside the permission vocabulary.
	ErrInvalidPermissionKey = errors.New("invalid permission key")
	// ErrProtectedRole indicates an attempt to delete a seeded role.
	ErrProtectedRole = errors.New("protected role")
	// ErrStorageUnavailable indicates the datastore could not serve the request.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrForbidden indicates the acting user lacks a required permission.
	ErrForbidden = errors.New("forbidden")
	// ErrUnauthenticated indicates the request carries no acting user.
	ErrUnauthenticated = errors.New("acting user required")
)

package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/odyssey-erp/odyssey-hr/internal/shared"
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeCheckViolation      = "23514"
	codeSerialization       = "40001"
	// Class 22 covers data exceptions such as 22001 string_data_right_truncation.
	classDataException = "22"
)

// Classify maps driver errors onto the shared error taxonomy. Errors that
// already carry a taxonomy sentinel are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{
		shared.ErrNotFound,
		shared.ErrDuplicateName,
		shared.ErrInvalidPermissionKey,
		shared.ErrProtectedRole,
		shared.ErrStorageUnavailable,
		shared.ErrValidation,
	} {
		if errors.Is(err, known) {
			return err
		}
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %v", shared.ErrNotFound, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return fmt.Errorf("%w: %s", shared.ErrDuplicateName, pgErr.ConstraintName)
		case codeForeignKeyViolation:
			return fmt.Errorf("%w: %s", shared.ErrNotFound, pgErr.ConstraintName)
		case codeCheckViolation:
			return fmt.Errorf("%w: %s", shared.ErrValidation, pgErr.ConstraintName)
		case codeSerialization:
			return fmt.Errorf("%w: concurrent update: %w", shared.ErrStorageUnavailable, err)
		}
		if strings.HasPrefix(pgErr.Code, classDataException) {
			return fmt.Errorf("%w: %s", shared.ErrValidation, pgErr.Message)
		}
	}
	return fmt.Errorf("%w: %v", shared.ErrStorageUnavailable, err)
}

// IsSerializationFailure reports whether err is a Postgres serialization
// failure that is safe to retry from the start of the transaction.
func IsSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeSerialization
}

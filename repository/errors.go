package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/goliatone/go-repository-bun"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/goliatone/go-workspace-auth/provisioning"
)

const pgUniqueViolation = "23505"

// mapError translates driver errors into the sentinels the provisioning
// saga branches on.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsUniqueViolation(err) {
		return fmt.Errorf("%s: %w: %v", op, provisioning.ErrConflict, err)
	}
	if errors.Is(err, sql.ErrNoRows) || repository.IsRecordNotFound(err) {
		return fmt.Errorf("%s: %w", op, provisioning.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsUniqueViolation reports whether err came from a unique constraint on
// either supported database.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}

	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed: UNIQUE")
}

package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

const pgUniqueViolation = "23505"

// pgError extracts the SQLSTATE and constraint from either postgres driver.
func pgError(err error) (code, constraint string, ok bool) {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return pgxErr.Code, pgxErr.ConstraintName, true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code), pqErr.Constraint, true
	}
	return "", "", false
}

// IsUniqueViolation reports whether err is a unique violation. A non-empty
// constraint must match the violated one; sqlite errors do not name it, so
// there the message has to mention it instead.
func IsUniqueViolation(err error, constraint string) bool {
	if err == nil {
		return false
	}
	if code, violated, ok := pgError(err); ok {
		return code == pgUniqueViolation && (constraint == "" || violated == constraint)
	}

	msg := err.Error()
	if constraint != "" {
		return strings.Contains(msg, constraint)
	}
	return errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}

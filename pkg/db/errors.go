package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolationCode = "23505"

// IsUniqueViolation reports whether the provided error is a unique constraint
// violation. Postgres errors carry the constraint name in the driver error
// while sqlite names the columns in the message, so callers pass every hint
// that identifies the constraint; with no hints any unique violation matches.
func IsUniqueViolation(err error, hints ...string) bool {
	if err == nil {
		return false
	}

	msg := err.Error()
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code != uniqueViolationCode {
			return false
		}
		msg = msg + " " + pgErr.ConstraintName
	} else if !strings.Contains(msg, "duplicate key value") &&
		!strings.Contains(msg, "SQLSTATE "+uniqueViolationCode) &&
		!strings.Contains(msg, "UNIQUE constraint failed") {
		return false
	}

	if len(hints) == 0 {
		return true
	}
	for _, hint := range hints {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}

package store

import (
	"errors"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Business errors. Store functions wrap these with context; callers match
// them with errors.Is. Any other error returned by this package is an
// infrastructure failure.
var (
	// ErrValidation reports malformed or missing input.
	ErrValidation = errors.New("invalid input")
	// ErrNotFound reports that a referenced entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidOwner reports that the caller is not the artwork's current owner.
	ErrInvalidOwner = errors.New("not the current owner")
	// ErrInvalidState reports an illegal state transition.
	ErrInvalidState = errors.New("invalid state")
	// ErrConflict reports a uniqueness collision.
	ErrConflict = errors.New("conflict")
)

// maxCodeAttempts bounds how many freshly generated codes are tried before
// a collision is reported.
const maxCodeAttempts = 5

// isUniqueViolation reports whether err is a SQLite unique constraint
// violation on the given table.column.
func isUniqueViolation(err error, column string) bool {
	var serr *sqlite.Error
	if !errors.As(err, &serr) {
		return false
	}
	if serr.Code() != sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return false
	}
	return column == "" || strings.Contains(serr.Error(), column)
}

package database

import (
	"database/sql"
	"errors"
	"strings"
)

var (
	// ErrConcurrentModification means a compare-and-swap found the row in
	// another state than expected.
	ErrConcurrentModification = errors.New("concurrent modification")

	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned when a unique constraint rejects an insert.
	ErrDuplicate = errors.New("duplicate")
)

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

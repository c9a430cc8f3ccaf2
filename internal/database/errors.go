package database

import (
	"errors"
	"strings"

	"github.com/lib/pq"
)

// IsUniqueViolation detects duplicate-key failures from both backends the
// query layers run against (postgres in production, sqlite in tests).
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}

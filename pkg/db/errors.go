package db

import "strings"

// IsUniqueViolation reports whether the error references a unique
// constraint violation. With a constraintName the check is scoped to
// that constraint; otherwise any duplicate-key error matches. The
// sqlite form is covered so the same check works in tests.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	if constraintName != "" && strings.Contains(msg, constraintName) {
		return true
	}
	return strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}

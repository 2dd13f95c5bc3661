package db

import (
	"strings"

	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
)

const (
	pgUniqueViolation      = "23505"
	sqliteUniqueViolation  = "2067"
	sqlitePrimaryKeyFailed = "1555"
)

// IsUniqueViolation reports whether err is a unique or primary key
// violation from Postgres or SQLite. A non-empty constraintName must also
// match the reported constraint, table or message.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	failure := pkgerrors.DatabaseFailure(err)
	if failure == nil {
		msg := err.Error()
		unique := strings.Contains(msg, "duplicate key value") || strings.Contains(msg, "UNIQUE constraint failed")
		return unique && (constraintName == "" || strings.Contains(msg, constraintName))
	}
	switch failure.Code {
	case pgUniqueViolation, sqliteUniqueViolation, sqlitePrimaryKeyFailed:
	default:
		return false
	}
	if constraintName == "" {
		return true
	}
	return failure.Constraint == constraintName ||
		failure.Table == constraintName ||
		strings.Contains(failure.Message, constraintName)
}

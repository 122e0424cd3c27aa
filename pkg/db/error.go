package db

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	// PostgreSQL (error code 23505)
	if strings.Contains(err.Error(), "duplicate key value violates unique constraint") {
		return true
	}

	// MySQL (error code 1062)
	if strings.Contains(err.Error(), "Error 1062") {
		return true
	}

	// SQLite (error code 2067)
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return true
	}

	return false
}

// IsLockTimeoutErr reports whether the error came from a lock wait that
// exceeded the store's timeout. Callers treat these as retryable: the
// transaction rolled back and no partial state was committed.
func IsLockTimeoutErr(err error) bool {
	if err == nil {
		return false
	}

	msg := err.Error()

	// PostgreSQL (SQLSTATE 55P03)
	if strings.Contains(msg, "lock timeout") || strings.Contains(msg, "55P03") {
		return true
	}

	// MySQL (error code 1205)
	if strings.Contains(msg, "Error 1205") || strings.Contains(msg, "Lock wait timeout") {
		return true
	}

	// SQLite
	if strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY") {
		return true
	}

	return false
}

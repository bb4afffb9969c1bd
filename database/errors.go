package database

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// IsDuplicateKey reports whether err is a unique constraint violation. Dialects with an error
// translator return gorm.ErrDuplicatedKey; the sqlite driver on modernc does not, so its message
// is matched as well.
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint failed") ||
		strings.Contains(msg, "duplicate entry") ||
		strings.Contains(msg, "duplicate key")
}

// IsNotFound reports whether err is gorm.ErrRecordNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

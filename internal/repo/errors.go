package repo

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrDuplicate indicates that a row with the same unique key already exists.
var ErrDuplicate = errors.New("duplicate")

// ErrStaleStage is returned by AdvanceStage when the stored stage no longer
// matches the caller's view (a concurrent transition won).
var ErrStaleStage = errors.New("stale stage")

// ErrTerminalStage is returned by AdvanceStage for users already at the last
// stage.
var ErrTerminalStage = errors.New("terminal stage")

// IsDuplicate detects unique-constraint violations across drivers that may
// not map to gorm.ErrDuplicatedKey.
func IsDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDuplicate) || errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint") ||
		strings.Contains(low, "constraint failed: unique") ||
		strings.Contains(low, "duplicate key")
}

// translate maps driver-level duplicate errors to ErrDuplicate and leaves
// everything else untouched.
func translate(err error) error {
	if err != nil && IsDuplicate(err) {
		return ErrDuplicate
	}
	return err
}

package permission

import "errors"

var (
	// ErrInvalidMode is returned when parsing an unknown permission mode.
	ErrInvalidMode = errors.New("permission: invalid mode")
)

package vault

import "errors"

// Integrity errors
var (
	ErrGroupNotFound   = errors.New("vault: group not found")
	ErrEntryNotFound   = errors.New("vault: entry not found")
	ErrCreateInTrash   = errors.New("vault: cannot create an entry in the trash")
	ErrGroupCycle      = errors.New("vault: group cannot be moved into itself or its descendants")
	ErrInvalidSnapshot = errors.New("vault: invalid snapshot")
)

// Validation errors
var (
	ErrKeyEmpty         = errors.New("vault: property or attribute key cannot be empty")
	ErrTagInvalid       = errors.New("vault: tag must contain only lowercase letters, numbers, '_' or '-'")
	ErrValueTypeInvalid = errors.New("vault: unknown property value type")
)

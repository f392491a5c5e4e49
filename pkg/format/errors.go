package format

import "errors"

// Format errors
var (
	// ErrUnknownSignature indicates content without a recognised format signature.
	ErrUnknownSignature = errors.New("format: no valid signature in vault content")

	// ErrLegacyFormat indicates content written in the legacy command-log format.
	ErrLegacyFormat = errors.New("format: legacy command-log vaults are not supported")

	// ErrNoSharedLineage indicates an attempt to merge vaults with different IDs.
	ErrNoSharedLineage = errors.New("format: vaults do not share a lineage")

	// ErrDecodeFailed indicates the decrypted payload is not a valid snapshot.
	ErrDecodeFailed = errors.New("format: failed to decode vault snapshot")
)

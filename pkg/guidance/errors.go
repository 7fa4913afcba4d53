package guidance

import "errors"

var (
	// ErrNotFound indicates a guidance version file does not exist on disk.
	ErrNotFound = errors.New("guidance version not found")

	// ErrInvalidLines indicates a proposer or caller supplied a non-line
	// payload (e.g. a line containing an embedded newline).
	ErrInvalidLines = errors.New("guidance lines must not contain embedded newlines")
)

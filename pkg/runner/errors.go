package runner

import "errors"

var (
	// ErrNoImage indicates every image-resolution strategy failed to
	// produce a usable tag (spec §4.2 "Container lifecycle").
	ErrNoImage = errors.New("could not resolve a container image for task")

	// ErrPatchTooLarge indicates the extracted patch exceeded MaxPatchSize
	// and was therefore treated as empty (spec §7 "Local failure").
	ErrPatchTooLarge = errors.New("patch exceeds maximum size, treated as empty")
)

// MaxPatchSize is the default patch-size limit in bytes (spec §4.2:
// "default 200 000 bytes").
const MaxPatchSize = 200_000

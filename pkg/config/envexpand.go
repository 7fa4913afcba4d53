package config

import "os"

// ExpandEnv expands environment variables in YAML content using the
// standard library. Supports both ${VAR} and $VAR syntax.
//
// Examples:
//   - ${CONTEXTTUNE_LLM_API_KEY} -> value of CONTEXTTUNE_LLM_API_KEY
//   - $CONTEXTTUNE_MODEL -> value of CONTEXTTUNE_MODEL
//
// Missing variables expand to an empty string; Validate should catch any
// required field that ends up empty.
func ExpandEnv(data []byte) []byte {
	return []byte(os.ExpandEnv(string(data)))
}

package config

import "os"

// ExpandEnv expands environment variables in YAML content using the
// standard library's shell-style ${VAR}/$VAR syntax. Missing variables
// expand to empty string; Validator rejects ACL entries and labels that
// end up empty, while Config.Validate checks only override keys.
func ExpandEnv(data []byte) []byte {
	return []byte(os.ExpandEnv(string(data)))
}

package graph

import (
	"path/filepath"
	"strings"
)

// Sensitivity ranks how sensitive an entity's content is assumed to be,
// judged purely from its path or name.
type Sensitivity string

const (
	SensitivityLow      Sensitivity = "LOW"
	SensitivityMedium   Sensitivity = "MEDIUM"
	SensitivityHigh     Sensitivity = "HIGH"
	SensitivityCritical Sensitivity = "CRITICAL"
)

// Rank returns a comparable ordering for sensitivity levels.
func (s Sensitivity) Rank() int {
	switch s {
	case SensitivityCritical:
		return 3
	case SensitivityHigh:
		return 2
	case SensitivityMedium:
		return 1
	default:
		return 0
	}
}

// Substring patterns checked against the lowercased path. Credential and key
// material outranks config/database material, which outranks source code.
var (
	criticalPatterns = []string{
		".pem", ".key", "id_rsa", "id_ed25519", "credential", "secret",
		".env", "password", "passwd.db", "private_key", "keychain",
		"/etc/shadow", ".aws/", ".ssh/", "token", "apikey", "api_key",
		".netrc", ".npmrc", ".pgpass", "vault",
	}
	highPatterns = []string{
		".conf", ".cfg", ".ini", "config", "/etc/", ".db", ".sqlite",
		".sql", "database", "dump", ".pgsql", "backup",
	}
	sourceExtensions = map[string]bool{
		".go": true, ".py": true, ".js": true, ".ts": true, ".java": true,
		".c": true, ".cc": true, ".cpp": true, ".h": true, ".rs": true,
		".rb": true, ".sh": true, ".pl": true, ".php": true, ".swift": true,
		".kt": true, ".scala": true,
	}
)

// ClassifySensitivity maps a normalized path or URL to a sensitivity level
// using the fixed classification table.
func ClassifySensitivity(path string) Sensitivity {
	lower := strings.ToLower(path)
	for _, p := range criticalPatterns {
		if strings.Contains(lower, p) {
			return SensitivityCritical
		}
	}
	for _, p := range highPatterns {
		if strings.Contains(lower, p) {
			return SensitivityHigh
		}
	}
	if sourceExtensions[filepath.Ext(lower)] {
		return SensitivityMedium
	}
	return SensitivityLow
}

// NormalizePath canonicalizes a file path for entity identity: cleaned,
// forward slashes, no trailing slash. URLs pass through with only trailing
// slash trimming.
func NormalizePath(path string) string {
	if strings.Contains(path, "://") {
		return strings.TrimRight(path, "/")
	}
	cleaned := filepath.ToSlash(filepath.Clean(path))
	if cleaned == "." {
		return path
	}
	return cleaned
}

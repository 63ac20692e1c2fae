package runner

import (
	"os"
	"slices"
	"strings"
)

// sensitiveEnvPrefixes are env var name prefixes stripped from the runtime's
// environment. The server loads third-party plugins; registry and cloud
// credentials of the developer stay with the toolchain.
var sensitiveEnvPrefixes = []string{
	"CARGO_REGISTRY_TOKEN",
	"CARGO_REGISTRIES_",
	"GITHUB_TOKEN",
	"GH_TOKEN",
	"GITLAB_TOKEN",
	"AWS_SECRET",
	"AWS_SESSION",
	"SSH_AUTH_SOCK",
}

// sensitiveEnvExact are env var names stripped by exact match.
var sensitiveEnvExact = []string{
	"API_KEY",
	"API_SECRET",
	"SECRET_KEY",
}

// SanitizedEnv returns os.Environ() with sensitive variables removed.
// Used for the launched runtime; cargo and git get the full environment.
func SanitizedEnv() []string {
	return sanitizeEnv(os.Environ())
}

func sanitizeEnv(environ []string) []string {
	clean := make([]string, 0, len(environ))
	for _, entry := range environ {
		name, _, ok := strings.Cut(entry, "=")
		if !ok {
			clean = append(clean, entry)
			continue
		}
		if !sensitive(strings.ToUpper(name)) {
			clean = append(clean, entry)
		}
	}
	return clean
}

func sensitive(name string) bool {
	for _, prefix := range sensitiveEnvPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return slices.Contains(sensitiveEnvExact, name)
}

package executor

import (
	"runtime"
	"strings"

	"github.com/gzhole/lca/internal/redact"
)

// windowsEnv is needed by almost every Windows program to start at all.
var windowsEnv = []string{"SYSTEMROOT", "COMSPEC", "PATHEXT", "WINDIR"}

// filterEnv keeps the variables named in passthrough and drops everything
// else, including passthrough names that look like credentials.
func filterEnv(environ, passthrough []string) []string {
	allowed := make(map[string]bool, len(passthrough)+len(windowsEnv))
	for _, name := range passthrough {
		allowed[envKey(name)] = true
	}
	if runtime.GOOS == "windows" {
		for _, name := range windowsEnv {
			allowed[envKey(name)] = true
		}
	}

	env := make([]string, 0, len(allowed))
	for _, kv := range environ {
		name, _, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			continue
		}
		if !allowed[envKey(name)] || redact.IsSecretName(name) {
			continue
		}
		env = append(env, kv)
	}
	return env
}

// envKey folds case on Windows, where variable names are case-insensitive.
func envKey(name string) string {
	if runtime.GOOS == "windows" {
		return strings.ToUpper(name)
	}
	return name
}

// Package redact scrubs credentials out of text before it is written to the
// audit log or shown back to an operator.
package redact

import (
	"regexp"
	"strings"
)

const redactedPlaceholder = "[REDACTED]"

var sensitivePatterns = []*regexp.Regexp{
	// AWS
	regexp.MustCompile(`(?i)(aws_access_key_id|aws_secret_access_key|aws_session_token)\s*[=:]\s*['"]?[A-Za-z0-9/+=]{20,}['"]?`),
	regexp.MustCompile(`AKIA[0-9A-Z]{16}`),

	// GitHub
	regexp.MustCompile(`(?i)(github_token|gh_token|github_pat)\s*[=:]\s*['"]?[A-Za-z0-9_-]{30,}['"]?`),
	regexp.MustCompile(`gh[pousr]_[A-Za-z0-9]{36}`),
	regexp.MustCompile(`github_pat_[A-Za-z0-9_]{22,}`),

	// LLM provider keys (sk-..., sk-ant-...) and Google API keys
	regexp.MustCompile(`sk-[A-Za-z0-9_-]{20,}`),
	regexp.MustCompile(`AIza[0-9A-Za-z_-]{35}`),

	// Generic API keys
	regexp.MustCompile(`(?i)(api_key|apikey|api-key|secret_key|secretkey|secret-key|access_token|auth_token)\s*[=:]\s*['"]?[A-Za-z0-9_-]{16,}['"]?`),

	// Private keys
	regexp.MustCompile(`-----BEGIN (RSA |EC |DSA |OPENSSH |PGP )?PRIVATE KEY-----`),

	// Bearer tokens
	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9_.-]{20,}`),

	// Basic auth in URLs
	regexp.MustCompile(`https?://[^:/\s]+:[^@\s]+@`),

	// Slack tokens
	regexp.MustCompile(`xox[baprs]-[0-9]{10,13}-[0-9]{10,13}[a-zA-Z0-9-]*`),

	// Stripe
	regexp.MustCompile(`[sr]k_live_[0-9a-zA-Z]{24}`),

	regexp.MustCompile(`(?i)(password|passwd|pwd|secret)\s*[=:]\s*['"]?[^\s'"]{8,}['"]?`),
}

// secretNameFragments mark an environment variable or flag name as holding a
// credential. Matching is on the upper-cased name.
var secretNameFragments = []string{
	"TOKEN",
	"SECRET",
	"PASSWORD",
	"PASSWD",
	"API_KEY",
	"APIKEY",
	"ACCESS_KEY",
	"PRIVATE_KEY",
	"CREDENTIAL",
	"DATABASE_URL",
	"REDIS_URL",
	"MONGO_URL",
}

func Redact(input string) string {
	result := input
	for _, pattern := range sensitivePatterns {
		result = pattern.ReplaceAllString(result, redactedPlaceholder)
	}
	return result
}

// IsSecretName reports whether an environment variable or flag name looks
// like it carries a credential.
func IsSecretName(name string) bool {
	upper := strings.ToUpper(strings.TrimLeft(name, "-"))
	upper = strings.ReplaceAll(upper, "-", "_")
	for _, fragment := range secretNameFragments {
		if strings.Contains(upper, fragment) {
			return true
		}
	}
	return false
}

func RedactEnvVars(envVars []string) []string {
	result := make([]string, 0, len(envVars))
	for _, env := range envVars {
		name, _, ok := strings.Cut(env, "=")
		if !ok {
			result = append(result, env)
			continue
		}
		if IsSecretName(name) {
			result = append(result, name+"="+redactedPlaceholder)
		} else {
			result = append(result, Redact(env))
		}
	}
	return result
}

// RedactArgs redacts each argument. A secret-named flag hides its value,
// whether attached (--token=x) or in the next argument (--token x).
func RedactArgs(args []string) []string {
	if args == nil {
		return nil
	}
	result := make([]string, len(args))
	hideNext := false
	for i, arg := range args {
		if hideNext {
			result[i] = redactedPlaceholder
			hideNext = false
			continue
		}
		if strings.HasPrefix(arg, "-") {
			if name, _, ok := strings.Cut(arg, "="); ok && IsSecretName(name) {
				result[i] = name + "=" + redactedPlaceholder
				continue
			}
			if IsSecretName(arg) && len(strings.TrimLeft(arg, "-")) > 1 {
				result[i] = arg
				hideNext = true
				continue
			}
		}
		result[i] = Redact(arg)
	}
	return result
}

// Summarize renders argv as a single redacted line for the audit log.
// Arguments containing whitespace or quotes are quoted.
func Summarize(argv []string) string {
	parts := RedactArgs(argv)
	for i, p := range parts {
		if p == "" || strings.ContainsAny(p, " \t\n'\"") {
			parts[i] = "'" + strings.ReplaceAll(p, "'", `'\''`) + "'"
		}
	}
	return strings.Join(parts, " ")
}

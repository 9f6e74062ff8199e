// Package redact removes credentials and other sensitive fragments from
// error text before it is logged, stored on a failed request, or returned to
// a client. Upstream SDK errors routinely embed request URLs with API keys,
// connection strings and bearer tokens.
package redact

import "regexp"

// Placeholders substituted for redacted fragments
const (
	CredentialPlaceholder = "[REDACTED_CREDENTIAL]"
	KeyPlaceholder        = "[REDACTED_KEY]"
	TokenPlaceholder      = "[REDACTED_TOKEN]"
	JWTPlaceholder        = "[REDACTED_JWT]"
	PathPlaceholder       = "[REDACTED_PATH]"
	EmailPlaceholder      = "[REDACTED_EMAIL]"
	StackTracePlaceholder = "[STACK_TRACE_REDACTED]"
)

// rule replaces every match of pattern with replacement, which may refer to
// capture groups.
type rule struct {
	pattern     *regexp.Regexp
	replacement string
}

// Rules run in order; JWTs go first so the bearer rule does not see them.
var rules = []rule{
	{
		pattern:     regexp.MustCompile(`eyJ[A-Za-z0-9_-]+\.eyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+`),
		replacement: JWTPlaceholder,
	},
	{
		pattern:     regexp.MustCompile(`(?i)\b(postgres(?:ql)?|rediss?|kafka|mysql|mongodb)://[^@\s/]+@`),
		replacement: "${1}://" + CredentialPlaceholder + "@",
	},
	{
		pattern:     regexp.MustCompile(`(?i)([?&]key=)[A-Za-z0-9_\-]+`),
		replacement: "${1}" + KeyPlaceholder,
	},
	{
		pattern:     regexp.MustCompile(`AIza[0-9A-Za-z_\-]{35}`),
		replacement: KeyPlaceholder,
	},
	{
		pattern:     regexp.MustCompile(`(?i)(password|passwd|pwd)([=:]\s*['"]?)[^'"&\s]+`),
		replacement: "${1}${2}" + CredentialPlaceholder,
	},
	{
		pattern:     regexp.MustCompile(`(?i)\b(api[_-]?key|secret|access[_-]?token|x-goog-api-key)(['"]?\s*[:=]\s*['"]?)[A-Za-z0-9_\-.~+/]{8,}`),
		replacement: "${1}${2}" + KeyPlaceholder,
	},
	{
		pattern:     regexp.MustCompile(`(?i)(bearer\s+)[A-Za-z0-9_\-.~+/=]{8,}`),
		replacement: "${1}" + TokenPlaceholder,
	},
	{
		pattern:     regexp.MustCompile(`(?:goroutine \d+ \[[^\]]*\]:|panic:)[\s\S]*`),
		replacement: StackTracePlaceholder,
	},
	{
		pattern:     regexp.MustCompile(`(?:/[\w.-]+){3,}`),
		replacement: PathPlaceholder,
	},
	{
		pattern:     regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
		replacement: EmailPlaceholder,
	},
}

// String redacts sensitive information from the input string.
func String(input string) string {
	if input == "" {
		return input
	}
	for _, r := range rules {
		input = r.pattern.ReplaceAllString(input, r.replacement)
	}
	return input
}

// Error redacts sensitive information from an error's Error() output.
func Error(err error) string {
	if err == nil {
		return ""
	}
	return String(err.Error())
}

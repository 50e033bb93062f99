package health

import (
	"regexp"
	"strings"

	"github.com/c360/smoothsail/component"
)

var (
	urlRegex         = regexp.MustCompile(`[a-zA-Z][a-zA-Z0-9+.-]*://[^\s]+`)
	unixPathRegex    = regexp.MustCompile(`/[a-zA-Z0-9/_.-]+`)
	windowsPathRegex = regexp.MustCompile(`[A-Z]:\\[^:\s]+`)
	ipAddrRegex      = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)
	portRegex        = regexp.MustCompile(`:\d{2,5}\b`)
	credentialRegex  = regexp.MustCompile(`(?i)(password|token|key|secret|credential)[^a-zA-Z]*[:=][^,\s}]+`)
)

var credentialWords = []string{"password", "token", "key", "secret", "credential"}

// sanitize strips URLs, file paths, addresses, ports and credentials from a
// message before it is stored in a record or sent in an alert.
func sanitize(msg string) string {
	if msg == "" {
		return ""
	}

	// URLs contain paths, so they go first.
	out := urlRegex.ReplaceAllString(msg, "[URL]")
	out = unixPathRegex.ReplaceAllString(out, "[PATH]")
	out = windowsPathRegex.ReplaceAllString(out, "[PATH]")
	out = ipAddrRegex.ReplaceAllString(out, "[IP]")
	out = portRegex.ReplaceAllString(out, "[PORT]")

	lower := strings.ToLower(out)
	for _, word := range credentialWords {
		if strings.Contains(lower, word) {
			out = credentialRegex.ReplaceAllString(out, "[REDACTED]")
			break
		}
	}
	return out
}

func sanitizeIssues(issues []component.Issue) []component.Issue {
	if len(issues) == 0 {
		return nil
	}
	out := make([]component.Issue, len(issues))
	for i, issue := range issues {
		issue.Message = sanitize(issue.Message)
		out[i] = issue
	}
	return out
}

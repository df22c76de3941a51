// Package fingerprint derives stable identities for failure text and detects
// infrastructure-related failures.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/leapstack-labs/rqg/pkg/core"
)

// DefaultVersion is the fingerprint algorithm version mixed into every hash.
const DefaultVersion = "v1"

// UnknownException is reported when no exception type can be extracted.
const UnknownException = "Unknown"

const maxFrames = 10

type replacement struct {
	pattern *regexp.Regexp
	with    string
}

// Order matters: full ISO timestamps must be replaced before their time and date parts.
var sanitizers = []replacement{
	{regexp.MustCompile(`(?i)\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}`), "<TIMESTAMP>"},
	{regexp.MustCompile(`(?i)\d{2}:\d{2}:\d{2}`), "<TIMESTAMP>"},
	{regexp.MustCompile(`(?i)\d{4}-\d{2}-\d{2}`), "<TIMESTAMP>"},
	{regexp.MustCompile(`(?i)[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`), "<UUID>"},
	{regexp.MustCompile(`(?i)[0-9a-f]{8,}`), "<HASH>"},
	{regexp.MustCompile(`:\d{2,5}`), ":<PORT>"},
	{regexp.MustCompile(`(?i)\d+(\.\d+)?(ms|s|m|h)`), "<DURATION>"},
}

var whitespace = regexp.MustCompile(`\s+`)

var exceptionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(\w+Error):`),
	regexp.MustCompile(`(\w+Exception):`),
	regexp.MustCompile(`(\w+Failure):`),
}

// Sanitize replaces volatile tokens (timestamps, ids, ports, durations) with
// placeholders and collapses whitespace.
func Sanitize(text string) string {
	for _, r := range sanitizers {
		text = r.pattern.ReplaceAllString(text, r.with)
	}
	return strings.TrimSpace(whitespace.ReplaceAllString(text, " "))
}

// TopFrames returns up to ten stack frame lines, trimmed, from the raw text.
// Collection starts at the first line that looks like the beginning of a trace.
func TopFrames(text string) []string {
	var frames []string
	inTrace := false
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.Contains(line, "Traceback") || strings.Contains(line, "at ") ||
			strings.Contains(line, "Exception") || strings.HasPrefix(trimmed, "File") {
			inTrace = true
		}
		if inTrace && (strings.Contains(line, "at ") || strings.HasPrefix(trimmed, "File")) {
			frames = append(frames, trimmed)
			if len(frames) >= maxFrames {
				break
			}
		}
	}
	return frames
}

// ExceptionType extracts the first "<Name>Error:", "<Name>Exception:" or
// "<Name>Failure:" token, trying the patterns in that order.
func ExceptionType(text string) string {
	for _, p := range exceptionPatterns {
		if m := p.FindStringSubmatch(text); m != nil {
			return m[1]
		}
	}
	return UnknownException
}

// Compute returns the fingerprint of a failure text. The second result is
// false when the text is empty and no fingerprint applies.
func Compute(text, version string) (string, bool) {
	if text == "" {
		return "", false
	}
	if version == "" {
		version = DefaultVersion
	}

	payload := strings.Join([]string{
		version,
		Sanitize(text),
		strings.Join(TopFrames(text), ":"),
		ExceptionType(text),
	}, "|")

	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:]), true
}

// Ensure computes and caches the fingerprint on a failing result that has
// failure text but no fingerprint yet. It returns the (possibly cached) value.
func Ensure(tr *core.TestResult, version string) string {
	if tr.Fingerprint != "" {
		return tr.Fingerprint
	}
	if fp, ok := Compute(tr.FailureText, version); ok {
		tr.Fingerprint = fp
	}
	return tr.Fingerprint
}

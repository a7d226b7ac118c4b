package sandbox

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// The harness reports its verdict as a single delimited token on the
// diagnostic stream. The delimiters are chosen to be vanishingly unlikely in
// ordinary program or strace output; both sides of the process boundary use
// these exact strings.
const (
	sentinelStart = "Z9HOMEDOMEVERDICTZ9:"
	sentinelEnd   = "::Z9HOMEDOMEVERDICTENDZ9"

	successPrefix = "success-"
)

var sentinelRe = regexp.MustCompile(regexp.QuoteMeta(sentinelStart) + `(.*?)` + regexp.QuoteMeta(sentinelEnd))

// ErrNoVerdict means the harness never reported: it crashed, was killed, or
// its output was truncated before the token. Treated as an ordinary failure.
var ErrNoVerdict = errors.New("no verdict token in sandbox output")

// MultiVerdictError means the harness contract was violated: more than one
// verdict token appeared. This is an internal-consistency fault, never an
// ordinary submission failure, and aborts the run.
type MultiVerdictError struct {
	Count int
}

func (e *MultiVerdictError) Error() string {
	return fmt.Sprintf("sandbox output contains %d verdict tokens, want exactly 1", e.Count)
}

// Sentinel wraps a result in the delimited token form. Used by the harness.
func Sentinel(result string) string {
	return sentinelStart + result + sentinelEnd
}

// SuccessResult encodes a passing verdict carrying the candidate's declared
// squish version.
func SuccessResult(squishVersion string) string {
	return successPrefix + squishVersion
}

// ParseSentinel extracts the single verdict result from captured output.
func ParseSentinel(output string) (string, error) {
	matches := sentinelRe.FindAllStringSubmatch(output, -1)
	switch len(matches) {
	case 0:
		return "", ErrNoVerdict
	case 1:
		return matches[0][1], nil
	default:
		return "", &MultiVerdictError{Count: len(matches)}
	}
}

// SuccessVersion splits a result into its declared version when the result is
// a success; ok is false for failure results.
func SuccessVersion(result string) (version string, ok bool) {
	if !strings.HasPrefix(result, successPrefix) {
		return "", false
	}
	return strings.TrimPrefix(result, successPrefix), true
}

package sandbox

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSentinelSuccess(t *testing.T) {
	output := "noise before\n" + Sentinel("success-2.3.1") + "\nnoise after\n"
	result, err := ParseSentinel(output)
	require.NoError(t, err)
	assert.Equal(t, "success-2.3.1", result)

	version, ok := SuccessVersion(result)
	require.True(t, ok)
	assert.Equal(t, "2.3.1", version)
}

func TestParseSentinelFailureReason(t *testing.T) {
	result, err := ParseSentinel(Sentinel("no game root"))
	require.NoError(t, err)
	assert.Equal(t, "no game root", result)

	_, ok := SuccessVersion(result)
	assert.False(t, ok)
}

func TestParseSentinelNone(t *testing.T) {
	_, err := ParseSentinel("strace lines only\nconnect(3, ...) = 0\n")
	assert.ErrorIs(t, err, ErrNoVerdict)
}

func TestParseSentinelMultipleIsFatal(t *testing.T) {
	output := Sentinel("success-1.0.0") + "\n" + Sentinel("success-2.0.0") + "\n"
	_, err := ParseSentinel(output)
	var multi *MultiVerdictError
	require.True(t, errors.As(err, &multi))
	assert.Equal(t, 2, multi.Count)
	assert.NotErrorIs(t, err, ErrNoVerdict)
}

// A candidate echoing the token mid-line must still parse as one token, and a
// forged second token must trip the fatal fault.
func TestParseSentinelEmbedded(t *testing.T) {
	result, err := ParseSentinel("prefix " + Sentinel("success-0.9.0") + " suffix")
	require.NoError(t, err)
	assert.Equal(t, "success-0.9.0", result)

	_, err = ParseSentinel(Sentinel("success-0.9.0") + Sentinel("forged"))
	var multi *MultiVerdictError
	assert.True(t, errors.As(err, &multi))
}

func TestSuccessResultRoundTrip(t *testing.T) {
	version, ok := SuccessVersion(SuccessResult("2.3.1"))
	require.True(t, ok)
	assert.Equal(t, "2.3.1", version)
}

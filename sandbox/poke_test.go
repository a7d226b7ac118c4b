package sandbox

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homegamesio/homedome/model"
	"github.com/homegamesio/homedome/policy"
)

type fakeRunner struct {
	result *RunResult
	err    error
	opts   RunOpts
}

func (f *fakeRunner) Run(_ context.Context, opts RunOpts) (*RunResult, error) {
	f.opts = opts
	return f.result, f.err
}

func sourceTree(t *testing.T, withEntry bool) string {
	t.Helper()
	dir := t.TempDir()
	if withEntry {
		if err := os.WriteFile(filepath.Join(dir, EntryPointFile), []byte("module.exports = class {}"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func testPoker(runner Runner) *Poker {
	return &Poker{
		Runner:      runner,
		Image:       "homedome-sandbox:latest",
		TrustedHost: "landlord.homegames.io",
		Timeout:     30 * time.Second,
		Resolve: func(ctx context.Context, host string) (*policy.AllowList, error) {
			return policy.NewAllowList(host, []string{"93.184.216.34"}), nil
		},
	}
}

var testMsg = model.PublishMessage{RequestID: "req-1", GameID: "game-1"}

func testReq() *model.PublishRequest {
	return &model.PublishRequest{RequestID: "req-1", GameID: "game-1", RepoOwner: "prosif", RepoName: "do-dad"}
}

func TestPokeSuccess(t *testing.T) {
	runner := &fakeRunner{result: &RunResult{
		Output: `connect(3, {sin_addr=inet_addr("93.184.216.34")}, 16) = 0` + "\n" + Sentinel("success-2.3.1") + "\n",
	}}
	res, err := testPoker(runner).Poke(context.Background(), sourceTree(t, true), testMsg, testReq())
	require.NoError(t, err)
	assert.Equal(t, "2.3.1", res.SquishVersion)

	// Payloads cross the boundary base64-encoded, after the source mount.
	require.Len(t, runner.opts.Command, 4)
	assert.Equal(t, defaultHarnessPath, runner.opts.Command[0])
	assert.Equal(t, defaultSourceMount, runner.opts.Command[1])
}

func TestPokeNoEntryPoint(t *testing.T) {
	runner := &fakeRunner{result: &RunResult{Output: Sentinel("success-1.0.0")}}
	_, err := testPoker(runner).Poke(context.Background(), sourceTree(t, false), testMsg, testReq())
	var nep *NoEntryPointError
	require.True(t, errors.As(err, &nep))
	// Nothing may launch without an entry point.
	assert.Empty(t, runner.opts.Image)
}

func TestPokeViolationOverridesSuccess(t *testing.T) {
	runner := &fakeRunner{result: &RunResult{
		Output: `connect(3, {sin_addr=inet_addr("10.0.0.9")}, 16) = 0` + "\n" + Sentinel("success-2.3.1") + "\n",
	}}
	_, err := testPoker(runner).Poke(context.Background(), sourceTree(t, true), testMsg, testReq())
	var pe *PolicyError
	require.True(t, errors.As(err, &pe))
	require.Len(t, pe.Violations, 1)
	assert.Equal(t, "10.0.0.9", pe.Violations[0].Addr)
}

func TestPokeFailureVerdict(t *testing.T) {
	runner := &fakeRunner{result: &RunResult{Output: Sentinel("no game root") + "\n"}}
	_, err := testPoker(runner).Poke(context.Background(), sourceTree(t, true), testMsg, testReq())
	var ve *VerdictError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "no game root", ve.Reason)
}

func TestPokeNoVerdict(t *testing.T) {
	runner := &fakeRunner{result: &RunResult{Output: "strace noise only\n"}}
	_, err := testPoker(runner).Poke(context.Background(), sourceTree(t, true), testMsg, testReq())
	assert.ErrorIs(t, err, ErrNoVerdict)
}

func TestPokeMultiVerdictFatal(t *testing.T) {
	// Even with a violation present, the protocol fault wins: the run aborts
	// rather than trusting any of the tokens.
	runner := &fakeRunner{result: &RunResult{
		Output: `connect(3, {sin_addr=inet_addr("10.0.0.9")}, 16) = 0` + "\n" +
			Sentinel("success-1.0.0") + "\n" + Sentinel("success-1.0.0") + "\n",
	}}
	_, err := testPoker(runner).Poke(context.Background(), sourceTree(t, true), testMsg, testReq())
	var multi *MultiVerdictError
	require.True(t, errors.As(err, &multi))
}

func TestPokeTimeout(t *testing.T) {
	runner := &fakeRunner{result: &RunResult{TimedOut: true, ExitCode: -1}}
	_, err := testPoker(runner).Poke(context.Background(), sourceTree(t, true), testMsg, testReq())
	var te *TimeoutError
	require.True(t, errors.As(err, &te))
}

func TestPokeLaunchFailure(t *testing.T) {
	runner := &fakeRunner{result: &RunResult{}, err: errors.New("sandbox launch: docker not found")}
	_, err := testPoker(runner).Poke(context.Background(), sourceTree(t, true), testMsg, testReq())
	assert.ErrorContains(t, err, "sandbox launch")
}

func TestBoundedWriter(t *testing.T) {
	w := newBoundedWriter(8)
	n, err := w.Write([]byte("12345"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	n, err = w.Write([]byte("67890"))
	require.NoError(t, err)
	assert.Equal(t, 5, n) // writers never see short writes
	assert.Equal(t, "12345678", w.String())
	assert.True(t, w.Truncated())

	// Past the cap, bytes are dropped but accepted.
	n, err = w.Write([]byte("x"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "12345678", w.String())
}

package sandbox

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/homegamesio/homedome/model"
	"github.com/homegamesio/homedome/policy"
	"github.com/homegamesio/homedome/trace"
)

// EntryPointFile is the file a candidate must expose at its extracted root.
const EntryPointFile = "index.js"

// NoEntryPointError means the extracted tree has no entry point; nothing is
// ever launched for such a submission.
type NoEntryPointError struct {
	Dir string
}

func (e *NoEntryPointError) Error() string {
	return fmt.Sprintf("no %s found in %s", EntryPointFile, e.Dir)
}

// TimeoutError means the sandbox was killed after exceeding its wall-clock
// bound.
type TimeoutError struct {
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("sandbox timed out after %s", e.After)
}

// VerdictError is the harness reporting an ordinary failure reason.
type VerdictError struct {
	Reason string
}

func (e *VerdictError) Error() string {
	return "sandbox verdict: " + e.Reason
}

// PolicyError means the run contacted addresses outside the allow-list. It
// overrides any success the harness claimed.
type PolicyError struct {
	Violations []policy.Violation
}

func (e *PolicyError) Error() string {
	addrs := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		addrs = append(addrs, v.Addr)
	}
	return "made network request to unknown IP: " + strings.Join(addrs, ", ")
}

// Result is a successful poke: the candidate passed the structural check
// inside isolation and made no disallowed network calls.
type Result struct {
	SquishVersion string
	Anomalies     int
	Truncated     bool
	Duration      time.Duration
}

// Poker drives one sandboxed dynamic-analysis run ("poke") per submission.
type Poker struct {
	Runner      Runner
	Image       string
	TrustedHost string
	Timeout     time.Duration

	// SourceMount is where the extracted tree appears inside the container.
	SourceMount string
	// HarnessPath is the harness binary baked into the sandbox image.
	HarnessPath string

	// Resolve overrides allow-list resolution. Nil means live DNS.
	Resolve func(ctx context.Context, host string) (*policy.AllowList, error)
}

const (
	defaultSourceMount = "/sandbox/source"
	defaultHarnessPath = "/usr/local/bin/homedome-harness"
)

// Poke executes the candidate rooted at sourceRoot in isolation and returns
// its verdict. The submission payloads cross the process boundary as
// base64-encoded JSON; results come back only as the verdict token plus the
// captured trace.
func (p *Poker) Poke(ctx context.Context, sourceRoot string, msg model.PublishMessage, req *model.PublishRequest) (*Result, error) {
	entry := filepath.Join(sourceRoot, EntryPointFile)
	if _, err := os.Stat(entry); err != nil {
		return nil, &NoEntryPointError{Dir: sourceRoot}
	}

	// Fresh allow-list per run. This is a live security boundary: resolution
	// results are never reused across runs.
	resolve := p.Resolve
	if resolve == nil {
		resolve = policy.Resolve
	}
	allow, err := resolve(ctx, p.TrustedHost)
	if err != nil {
		return nil, err
	}
	log.Printf("sandbox: allow-list for %s: %v", p.TrustedHost, allow.IPs())

	msgB64, err := encodePayload(msg)
	if err != nil {
		return nil, fmt.Errorf("encode submission event: %w", err)
	}
	reqB64, err := encodePayload(req)
	if err != nil {
		return nil, fmt.Errorf("encode request record: %w", err)
	}

	sourceMount := p.SourceMount
	if sourceMount == "" {
		sourceMount = defaultSourceMount
	}
	harnessPath := p.HarnessPath
	if harnessPath == "" {
		harnessPath = defaultHarnessPath
	}

	res, err := p.Runner.Run(ctx, RunOpts{
		Image:   p.Image,
		Command: []string{harnessPath, sourceMount, msgB64, reqB64},
		Env:     map[string]string{"HOMEDOME_TRUSTED_HOST": p.TrustedHost},
		Mounts:  map[string]string{sourceRoot: sourceMount},
		Timeout: p.Timeout,
		Network: "bridge",
	})
	if err != nil {
		return nil, err
	}
	if res.TimedOut {
		return nil, &TimeoutError{After: p.Timeout}
	}
	if res.ExitCode != 0 {
		log.Printf("sandbox: harness exited %d for request %s (verdict token decides)", res.ExitCode, req.RequestID)
	}

	monitor := policy.NewMonitor(allow)
	for ev := range trace.Events(strings.NewReader(res.Output)) {
		monitor.Observe(ev)
	}

	verdict, err := ParseSentinel(res.Output)
	if err != nil {
		var multi *MultiVerdictError
		if errors.As(err, &multi) {
			// Harness contract violated; abort rather than pick a verdict.
			return nil, multi
		}
		if monitor.Failed() {
			return nil, &PolicyError{Violations: monitor.Violations()}
		}
		return nil, err
	}

	// A recorded violation overrides whatever the harness claimed.
	if monitor.Failed() {
		return nil, &PolicyError{Violations: monitor.Violations()}
	}

	version, ok := SuccessVersion(verdict)
	if !ok {
		return nil, &VerdictError{Reason: verdict}
	}

	return &Result{
		SquishVersion: version,
		Anomalies:     monitor.Anomalies(),
		Truncated:     res.Truncated,
		Duration:      res.Duration,
	}, nil
}

func encodePayload(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// Package sandbox executes one untrusted candidate module in an isolated
// traced container and turns the captured output into a verdict.
package sandbox

import (
	"context"
	"time"
)

type RunResult struct {
	ExitCode  int
	Output    string // combined stdout+stderr, bounded
	Truncated bool
	TimedOut  bool
	Duration  time.Duration
}

type Runner interface {
	Run(ctx context.Context, opts RunOpts) (*RunResult, error)
}

type RunOpts struct {
	Image   string
	Command []string
	Env     map[string]string
	Mounts  map[string]string // host path -> container path, read-only
	Timeout time.Duration
	Memory  string // e.g. "512m"; empty means default
	Network string // e.g. "bridge"; empty means "none"
}

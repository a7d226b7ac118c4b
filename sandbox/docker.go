package sandbox

import (
	"context"
	"crypto/rand"
	"fmt"
	"log"
	"os/exec"
	"time"
)

// DockerRunner runs the harness in a resource-limited container. One
// supervised invocation per call; the container is removed on exit and killed
// on timeout.
type DockerRunner struct {
	MaxOutputBytes int
}

func NewDockerRunner() *DockerRunner {
	return &DockerRunner{MaxOutputBytes: DefaultMaxOutputBytes}
}

func (d *DockerRunner) Run(ctx context.Context, opts RunOpts) (*RunResult, error) {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 2 * time.Minute
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	name := fmt.Sprintf("homedome-poke-%s", randomSuffix())

	memory := opts.Memory
	if memory == "" {
		memory = "512m"
	}
	network := opts.Network
	if network == "" {
		network = "none"
	}

	args := []string{
		"run", "--rm", "--name", name,
		"--memory=" + memory, "--cpus=1", "--pids-limit=256",
		"--network=" + network,
		"--cap-add=SYS_PTRACE", // strace inside the container
	}
	for host, container := range opts.Mounts {
		args = append(args, "-v", fmt.Sprintf("%s:%s:ro", host, container))
	}
	for k, v := range opts.Env {
		args = append(args, "-e", fmt.Sprintf("%s=%s", k, v))
	}
	args = append(args, opts.Image)
	args = append(args, opts.Command...)

	w := newBoundedWriter(d.MaxOutputBytes)
	cmd := exec.CommandContext(ctx, "docker", args...)
	cmd.Stdout = w
	cmd.Stderr = w

	start := time.Now()
	err := cmd.Run()
	result := &RunResult{
		Output:    w.String(),
		Truncated: w.Truncated(),
		Duration:  time.Since(start),
	}

	if ctx.Err() == context.DeadlineExceeded {
		exec.Command("docker", "kill", name).Run()
		result.TimedOut = true
		result.ExitCode = -1
		return result, nil
	}
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			// Non-zero exit is not a runner error; the verdict token decides.
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return result, fmt.Errorf("sandbox launch: %w", err)
	}
	if result.Truncated {
		log.Printf("sandbox: output truncated at %d bytes for %s", d.MaxOutputBytes, name)
	}
	return result, nil
}

func randomSuffix() string {
	b := make([]byte, 4)
	rand.Read(b)
	return fmt.Sprintf("%x", b)
}

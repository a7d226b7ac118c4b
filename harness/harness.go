// Package harness is the inside of the sandbox: it runs the candidate's
// structural check under strace and reports a single verdict token on the
// diagnostic stream. It runs in an isolated container, never in the worker's
// process.
package harness

import (
	"context"
	_ "embed"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/homegamesio/homedome/model"
	"github.com/homegamesio/homedome/sandbox"
)

//go:embed tester.js
var testerShim string

// Input is the decoded invocation: the mounted source tree plus the
// submission payloads, which arrive base64(JSON)-encoded so they survive
// argument passing.
type Input struct {
	SourceDir   string
	Message     model.PublishMessage
	Request     model.PublishRequest
	TrustedHost string
	NodePath    string
}

func ParseArgs(args []string) (*Input, error) {
	if len(args) != 3 {
		return nil, fmt.Errorf("want 3 arguments (source dir, event, record), got %d", len(args))
	}
	in := &Input{SourceDir: args[0]}
	if err := decodePayload(args[1], &in.Message); err != nil {
		return nil, fmt.Errorf("submission event: %w", err)
	}
	if err := decodePayload(args[2], &in.Request); err != nil {
		return nil, fmt.Errorf("request record: %w", err)
	}
	return in, nil
}

func decodePayload(b64 string, v any) error {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

// Run performs one check and returns the result token payload. It never
// errors: every failure becomes a free-text reason for the verdict token.
func Run(ctx context.Context, in *Input) string {
	// The mount is read-only; the shim needs to link node_modules into the
	// tree, so work on a private copy.
	workDir, err := copySource(ctx, in.SourceDir)
	if err != nil {
		return "copy source: " + err.Error()
	}
	defer os.RemoveAll(workDir)

	entry := filepath.Join(workDir, sandbox.EntryPointFile)
	if _, err := os.Stat(entry); err != nil {
		return "no " + sandbox.EntryPointFile + " entry point"
	}

	version, err := SquishVersion(workDir)
	if err != nil {
		return err.Error()
	}

	// Build the allow-list from inside isolation: this network view is the
	// one the candidate actually sees. Resolved fresh for every run.
	host := in.TrustedHost
	if host == "" {
		host = "landlord.homegames.io"
	}
	addrs, err := net.DefaultResolver.LookupHost(ctx, host)
	if err != nil {
		return fmt.Sprintf("resolve trusted host %s: %v", host, err)
	}
	log.Printf("harness: allow-list for %s: %s", host, strings.Join(addrs, ", "))

	shim, err := writeShim()
	if err != nil {
		return "write shim: " + err.Error()
	}
	defer os.Remove(shim)

	node := in.NodePath
	if node == "" {
		node = "node"
	}

	// The whole check runs under the tracer; strace and the shim both write
	// to stderr, which the worker captures as the diagnostic stream.
	cmd := exec.CommandContext(ctx, "strace", "-f", node, shim, entry)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "structural check timed out"
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Sprintf("structural check failed (exit %d)", exitErr.ExitCode())
		}
		return "structural check failed: " + err.Error()
	}

	return sandbox.SuccessResult(version)
}

// Emit writes the verdict token. Called exactly once per invocation.
func Emit(w io.Writer, result string) {
	fmt.Fprintln(w, sandbox.Sentinel(result))
}

// SquishVersion reads the dependency version the candidate declares for the
// squish runtime from its package.json.
func SquishVersion(dir string) (string, error) {
	raw, err := os.ReadFile(filepath.Join(dir, "package.json"))
	if err != nil {
		return "", errors.New("no package.json in source root")
	}
	var pkg struct {
		Dependencies map[string]string `json:"dependencies"`
	}
	if err := json.Unmarshal(raw, &pkg); err != nil {
		return "", fmt.Errorf("parse package.json: %v", err)
	}
	v := strings.TrimSpace(strings.TrimLeft(pkg.Dependencies["squish"], "^~>=<"))
	if v == "" {
		return "", errors.New("no squish dependency declared")
	}
	return v, nil
}

func copySource(ctx context.Context, src string) (string, error) {
	dir, err := os.MkdirTemp("", "homedome-poke-*")
	if err != nil {
		return "", err
	}
	cmd := exec.CommandContext(ctx, "cp", "-a", src+"/.", dir)
	if out, err := cmd.CombinedOutput(); err != nil {
		os.RemoveAll(dir)
		return "", fmt.Errorf("%s", strings.TrimSpace(string(out)))
	}
	return dir, nil
}

func writeShim() (string, error) {
	f, err := os.CreateTemp("", "homedome-tester-*.js")
	if err != nil {
		return "", err
	}
	if _, err := f.WriteString(testerShim); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), f.Close()
}

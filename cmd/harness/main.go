// The sandbox-side binary. Baked into the sandbox image; the worker invokes
// it as the container command with the source mount and the encoded
// submission payloads. Its exit code carries no meaning; the verdict token
// on stderr is authoritative, and exactly one is always written.
package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/homegamesio/homedome/harness"
)

func main() {
	log.SetPrefix("harness: ")
	log.SetFlags(0)

	in, err := harness.ParseArgs(os.Args[1:])
	if err != nil {
		harness.Emit(os.Stderr, "bad invocation: "+err.Error())
		return
	}
	in.TrustedHost = os.Getenv("HOMEDOME_TRUSTED_HOST")
	in.NodePath = os.Getenv("HOMEDOME_NODE")

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	harness.Emit(os.Stderr, harness.Run(ctx, in))
}

// Package trace classifies raw strace output into security-relevant events.
//
// The input is adversarially influenced: the traced process can write
// arbitrary text to the stream the trace shares. Classification is therefore
// strictly line-oriented, never errors, and caps per-line memory.
package trace

import (
	"bufio"
	"io"
	"iter"
	"regexp"
	"strconv"
	"strings"
)

type Category string

const (
	CategoryOpen    Category = "open"
	CategoryRead    Category = "read"
	CategorySocket  Category = "socket"
	CategoryConnect Category = "connect"
	CategoryIgnored Category = "ignored"
)

// Event is one classified trace line. Argument fields are best-effort: a
// malformed line keeps its category with zero-valued arguments.
type Event struct {
	Category Category
	Raw      string

	Path  string // open: quoted path operand
	FD    int    // read: file descriptor operand
	Bytes int    // read: byte count operand
	Addr  string // connect: dotted-quad from the socket-address literal, or ""
}

// maxLineBytes caps how much of a single line is buffered. Anything beyond
// the cap is discarded up to the next newline.
const maxLineBytes = 64 * 1024

var (
	openRe        = regexp.MustCompile(`^open\("([^"]*)"`)
	readRe        = regexp.MustCompile(`^read\((\d+),.*,\s*(\d+)\)`)
	connectAddrRe = regexp.MustCompile(`inet_addr\("((?:\d{1,3}\.){3}\d{1,3})"\)`)

	// Tracing with -f prefixes every line with the acting task once more
	// than one is traced: "[pid 1234] connect(..." on stderr, "1234  connect(..."
	// with -o. The prefix is stripped before any syscall matching.
	pidPrefixRe = regexp.MustCompile(`^(?:\[pid\s+\d+\]\s*|\d+\s+)`)
)

// noisePrefixes are high-frequency, policy-irrelevant calls that are dropped
// entirely rather than surfaced as ignored events.
var noisePrefixes = []string{"clock_gettime(", "close(", "futex("}

var socketPrefixes = []string{"getsockopt(", "setsockopt(", "getsockname(", "socket("}

// Classify categorizes a single trace line. The second return is false for
// noise lines that consumers should never see. Raw keeps the line as
// captured, pid prefix included.
func Classify(line string) (Event, bool) {
	call := pidPrefixRe.ReplaceAllString(line, "")

	for _, p := range noisePrefixes {
		if strings.HasPrefix(call, p) {
			return Event{}, false
		}
	}

	ev := Event{Category: CategoryIgnored, Raw: line}

	switch {
	case strings.HasPrefix(call, "open("):
		ev.Category = CategoryOpen
		if m := openRe.FindStringSubmatch(call); m != nil {
			ev.Path = m[1]
		}
	case strings.HasPrefix(call, "read("):
		ev.Category = CategoryRead
		if m := readRe.FindStringSubmatch(call); m != nil {
			ev.FD, _ = strconv.Atoi(m[1])
			ev.Bytes, _ = strconv.Atoi(m[2])
		}
	case strings.HasPrefix(call, "connect("):
		ev.Category = CategoryConnect
		if m := connectAddrRe.FindStringSubmatch(call); m != nil {
			ev.Addr = m[1]
		}
	default:
		for _, p := range socketPrefixes {
			if strings.HasPrefix(call, p) {
				ev.Category = CategorySocket
				break
			}
		}
	}
	return ev, true
}

// Events streams classified events from r, one per line, skipping noise.
// It never fails: read errors simply end the sequence.
func Events(r io.Reader) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		br := bufio.NewReaderSize(r, 32*1024)
		for {
			line, err := readLine(br)
			if line != "" {
				if ev, ok := Classify(line); ok && !yield(ev) {
					return
				}
			}
			if err != nil {
				return
			}
		}
	}
}

// Parse classifies a full captured trace. Convenience for callers that
// already hold the text in memory.
func Parse(text string) []Event {
	var events []Event
	for ev := range Events(strings.NewReader(text)) {
		events = append(events, ev)
	}
	return events
}

// readLine reads one line, keeping at most maxLineBytes of it and discarding
// the rest up to the newline.
func readLine(br *bufio.Reader) (string, error) {
	var buf []byte
	for {
		chunk, err := br.ReadSlice('\n')
		if room := maxLineBytes - len(buf); room > 0 && len(chunk) > 0 {
			if len(chunk) > room {
				chunk = chunk[:room]
			}
			buf = append(buf, chunk...)
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		return strings.TrimRight(string(buf), "\r\n"), err
	}
}

package node

import (
	"bytes"
	"strings"
	"sync"
)

const (
	rootKeyMarker = "Aptos root key path"

	// The marker is printed in the validator's start-up banner; output
	// past this point is not scanned.
	maxScan = 64 << 10
)

// keyWatcher is an io.Writer that scans validator stdout for the root key
// announcement and delivers the path once on found.
type keyWatcher struct {
	mu      sync.Mutex
	buf     bytes.Buffer
	scanned int
	done    bool
	found   chan string
}

func newKeyWatcher() *keyWatcher {
	return &keyWatcher{found: make(chan string, 1)}
}

// Write always reports all bytes as consumed so it never stalls the
// output copy it is attached to.
func (w *keyWatcher) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.done {
		return len(p), nil
	}
	w.scanned += len(p)
	w.buf.Write(p)

	for {
		line, err := w.buf.ReadString('\n')
		if err != nil {
			// Keep the partial line for the next write.
			w.buf.Reset()
			w.buf.WriteString(line)
			break
		}
		if path, ok := parseRootKeyPath(line); ok {
			w.found <- path
			w.done = true
			w.buf.Reset()
			return len(p), nil
		}
	}

	if w.scanned >= maxScan {
		w.done = true
		w.buf.Reset()
	}
	return len(p), nil
}

// parseRootKeyPath extracts the path from a line such as
//
//	Aptos root key path: "/home/user/.aptos/mint.key"
func parseRootKeyPath(line string) (string, bool) {
	idx := strings.Index(line, rootKeyMarker)
	if idx < 0 {
		return "", false
	}
	rest := line[idx+len(rootKeyMarker):]
	colon := strings.Index(rest, ":")
	if colon < 0 {
		return "", false
	}
	path := strings.TrimSpace(rest[colon+1:])
	path = strings.ReplaceAll(path, `"`, "")
	if path == "" {
		return "", false
	}
	return path, true
}

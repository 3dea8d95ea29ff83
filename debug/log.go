package debug

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mitchellh/go-homedir"
)

var (
	out      io.Writer
	file     *os.File
	mu       sync.Mutex
	counters = make(map[string]int)
)

// Enable starts debug logging to ~/.config/hvmidi/debug.log
func Enable() error {
	home, err := homedir.Dir()
	if err != nil {
		return err
	}
	dir := filepath.Join(home, ".config", "hvmidi")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return EnableFile(filepath.Join(dir, "debug.log"))
}

// EnableFile starts debug logging to path, truncating it.
func EnableFile(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}

	mu.Lock()
	if file != nil {
		file.Close()
	}
	file = f
	out = f
	mu.Unlock()

	Log("debug", "=== Debug logging started ===")
	return nil
}

// SetOutput logs to w instead of a file. Passing nil disables logging.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	if file != nil {
		file.Close()
		file = nil
	}
	out = w
}

// Disable stops debug logging
func Disable() {
	SetOutput(nil)
}

// Enabled reports whether log lines are written anywhere.
func Enabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return out != nil
}

// Log writes a message to the debug log
func Log(category, format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()

	if out == nil {
		return
	}

	ts := time.Now().Format("15:04:05.000")
	fmt.Fprintf(out, "[%s] %-10s %s\n", ts, category, fmt.Sprintf(format, args...))
	if file != nil {
		file.Sync() // flush immediately so we see logs even on crash
	}
}

// LogEvery logs only every N calls (use for per-block events)
func LogEvery(n int, category, format string, args ...any) {
	mu.Lock()
	key := category + format
	counters[key]++
	count := counters[key]
	mu.Unlock()

	if count%n == 0 {
		Log(category, format+" (every %d, count=%d)", append(args, n, count)...)
	}
}

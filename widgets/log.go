package widgets

import "strings"

// Log keeps the most recent lines up to a fixed capacity.
type Log struct {
	lines []string
	next  int
	full  bool
}

func NewLog(size int) *Log {
	if size <= 0 {
		size = 1
	}
	return &Log{lines: make([]string, size)}
}

func (l *Log) Add(line string) {
	l.lines[l.next] = line
	l.next++
	if l.next == len(l.lines) {
		l.next = 0
		l.full = true
	}
}

func (l *Log) Clear() {
	clear(l.lines)
	l.next = 0
	l.full = false
}

func (l *Log) Len() int {
	if l.full {
		return len(l.lines)
	}
	return l.next
}

// Tail returns up to n of the newest lines, oldest first.
func (l *Log) Tail(n int) []string {
	count := l.Len()
	if n > count {
		n = count
	}
	if n <= 0 {
		return nil
	}
	out := make([]string, n)
	start := l.next - n
	for i := range out {
		idx := start + i
		if idx < 0 {
			idx += len(l.lines)
		}
		out[i] = l.lines[idx]
	}
	return out
}

// View renders the newest height lines, padding the top with blank lines
// so the block keeps a fixed height.
func (l *Log) View(height int) string {
	tail := l.Tail(height)
	pad := height - len(tail)
	if pad < 0 {
		pad = 0
	}
	lines := make([]string, 0, height)
	for i := 0; i < pad; i++ {
		lines = append(lines, "")
	}
	lines = append(lines, tail...)
	return strings.Join(lines, "\n")
}

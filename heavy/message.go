// Package heavy describes the message contract of a compiled Heavy patch:
// receiver hashes, messages and the hooks a patch calls back through.
package heavy

import (
	"fmt"
	"strings"
)

// Message is a message received from the engine. Reading an index past
// NumElements returns 0.
type Message interface {
	NumElements() int
	Float(index int) float32
}

// Args is a Message backed by a float slice.
type Args []float32

func (a Args) NumElements() int {
	return len(a)
}

func (a Args) Float(index int) float32 {
	if index < 0 || index >= len(a) {
		return 0
	}
	return a[index]
}

func (a Args) String() string {
	parts := make([]string, len(a))
	for i, f := range a {
		parts[i] = fmt.Sprintf("%g", f)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// Sender delivers a message with float arguments to a receiver.
type Sender interface {
	SendMessage(receiver uint32, args ...float32) error
}

// SendHook is called for every send the patch makes to the outside world.
type SendHook func(name string, hash uint32, msg Message)

// PrintHook is called for [print] objects in the patch. timeMs is the
// engine time of the message.
type PrintHook func(name, text string, timeMs float64)

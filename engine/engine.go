// Package engine defines the contract of a running Heavy patch and
// provides in-process implementations of it.
package engine

import (
	"errors"

	"hvmidi/heavy"
)

// ErrClosed is returned by operations on a closed engine.
var ErrClosed = errors.New("engine: closed")

// Engine is a running patch instance. Implementations are not safe for
// concurrent use; the host serialises all calls.
type Engine interface {
	heavy.Sender

	SendFloat(receiver uint32, f float32) error
	SendBang(receiver uint32) error
	SendSymbol(receiver uint32, s string) error

	// SetTable resizes a table and copies data into it.
	SetTable(table uint32, data []float32) error

	NumInputChannels() int
	NumOutputChannels() int

	// Process renders n frames. Buffers are non-interleaved, one slice
	// per channel, each at least n long.
	Process(in, out [][]float32, n int) error

	// Hooks fire from inside Process.
	SetSendHook(hook heavy.SendHook)
	SetPrintHook(hook heavy.PrintHook)

	Close() error
}

// Silence zeroes the first n frames of every channel.
func Silence(out [][]float32, n int) {
	for _, ch := range out {
		clear(ch[:min(n, len(ch))])
	}
}

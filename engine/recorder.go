package engine

import (
	"sync"

	"hvmidi/heavy"
)

// SendKind tells what kind of message a Recorder saw.
type SendKind int

const (
	KindMessage SendKind = iota
	KindFloat
	KindBang
	KindSymbol
	KindTable
)

// Send is one recorded delivery.
type Send struct {
	Kind     SendKind
	Receiver uint32
	Args     heavy.Args
	Symbol   string
}

// Recorder is an Engine that records what it receives and renders
// silence. Hooks only fire through Emit and Print. It backs the
// "recorder" engine type for dry runs and is the engine most tests use.
type Recorder struct {
	mu        sync.Mutex
	sends     []Send
	blocks    int
	outputs   int
	closed    bool
	sendHook  heavy.SendHook
	printHook heavy.PrintHook
}

// NewRecorder creates a recorder with the given number of output channels.
func NewRecorder(outputs int) *Recorder {
	return &Recorder{outputs: outputs}
}

func (r *Recorder) record(s Send) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	r.sends = append(r.sends, s)
	return nil
}

func (r *Recorder) SendMessage(receiver uint32, args ...float32) error {
	return r.record(Send{Kind: KindMessage, Receiver: receiver, Args: append(heavy.Args(nil), args...)})
}

func (r *Recorder) SendFloat(receiver uint32, f float32) error {
	return r.record(Send{Kind: KindFloat, Receiver: receiver, Args: heavy.Args{f}})
}

func (r *Recorder) SendBang(receiver uint32) error {
	return r.record(Send{Kind: KindBang, Receiver: receiver})
}

func (r *Recorder) SendSymbol(receiver uint32, s string) error {
	return r.record(Send{Kind: KindSymbol, Receiver: receiver, Symbol: s})
}

func (r *Recorder) SetTable(table uint32, data []float32) error {
	return r.record(Send{Kind: KindTable, Receiver: table, Args: append(heavy.Args(nil), data...)})
}

func (r *Recorder) NumInputChannels() int  { return 0 }
func (r *Recorder) NumOutputChannels() int { return r.outputs }

func (r *Recorder) Process(in, out [][]float32, n int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	r.blocks++
	Silence(out, n)
	return nil
}

func (r *Recorder) SetSendHook(hook heavy.SendHook)   { r.sendHook = hook }
func (r *Recorder) SetPrintHook(hook heavy.PrintHook) { r.printHook = hook }

// Emit calls the send hook as if the patch had sent args to name.
func (r *Recorder) Emit(name string, args ...float32) {
	if r.sendHook != nil {
		r.sendHook(name, heavy.StringToHash(name), heavy.Args(args))
	}
}

// Print calls the print hook as if a [print] object fired.
func (r *Recorder) Print(name, text string) {
	if r.printHook != nil {
		r.printHook(name, text, 0)
	}
}

func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// Sends returns a copy of everything received so far.
func (r *Recorder) Sends() []Send {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Send(nil), r.sends...)
}

// To returns the recorded sends addressed to receiver.
func (r *Recorder) To(receiver uint32) []Send {
	var out []Send
	for _, s := range r.Sends() {
		if s.Receiver == receiver {
			out = append(out, s)
		}
	}
	return out
}

// Blocks returns the number of processed blocks.
func (r *Recorder) Blocks() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.blocks
}

// Reset forgets recorded sends.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sends = nil
}

// Package host drives an engine block by block and carries commands and
// MIDI into it and events back out.
package host

import (
	"context"
	"fmt"
	"sync"
	"time"

	"hvmidi/debug"
	"hvmidi/engine"
	"hvmidi/heavy"
	"hvmidi/midi"
)

type EventType int

const (
	EventMidiIn EventType = iota
	EventMidiOut
	EventSend
	EventPrint
	EventError
)

func (t EventType) String() string {
	switch t {
	case EventMidiIn:
		return "in"
	case EventMidiOut:
		return "out"
	case EventSend:
		return "send"
	case EventPrint:
		return "print"
	case EventError:
		return "error"
	}
	return "?"
}

// Event is something the host reports back: MIDI in and out, patch sends
// that are not MIDI, prints and failures.
type Event struct {
	Type  EventType
	Block uint64
	Raw   midi.Raw
	Name  string
	Value float32
	Text  string
	Err   error
}

func (e Event) String() string {
	switch e.Type {
	case EventMidiIn, EventMidiOut:
		return fmt.Sprintf("%-5s %-8s %-12s ch%-2d", e.Type, e.Raw, midi.CommandName(e.Raw.Status()), e.Raw.Channel()+1)
	case EventSend:
		return fmt.Sprintf("%-5s %s %g", e.Type, e.Name, e.Value)
	case EventPrint:
		return fmt.Sprintf("%-5s %s", e.Type, e.Text)
	case EventError:
		return fmt.Sprintf("%-5s %v", e.Type, e.Err)
	}
	return e.Type.String()
}

// Options configures a Host.
type Options struct {
	SampleRate float64
	BlockSize  int

	// Named receivers the patch exposes.
	Parameters heavy.Table
	Events     heavy.Table
	Tables     heavy.Table

	// Listener receives events synchronously from the processing
	// goroutine. When nil, events go to the Events channel and are
	// dropped if nobody reads them.
	Listener func(Event)
}

type command struct {
	raw midi.Raw // set for MIDI commands
	run func(engine.Engine) error
}

// Host owns an engine and serialises everything that touches it.
type Host struct {
	eng  engine.Engine
	tr   *midi.Translator
	opts Options

	mu    sync.Mutex
	queue []command

	events chan Event
	in     [][]float32
	out    [][]float32
	blocks uint64
}

// New wires the engine's hooks to the host. tr may be nil.
func New(eng engine.Engine, tr *midi.Translator, opts Options) *Host {
	if tr == nil {
		tr = midi.NewTranslator(nil)
	}
	if opts.SampleRate <= 0 {
		opts.SampleRate = 48000
	}
	if opts.BlockSize <= 0 {
		opts.BlockSize = 128
	}

	h := &Host{
		eng:    eng,
		tr:     tr,
		opts:   opts,
		events: make(chan Event, 1024),
		in:     buffers(eng.NumInputChannels(), opts.BlockSize),
		out:    buffers(max(eng.NumOutputChannels(), 1), opts.BlockSize),
	}
	eng.SetSendHook(h.onSend)
	eng.SetPrintHook(h.onPrint)
	return h
}

func buffers(channels, frames int) [][]float32 {
	b := make([][]float32, channels)
	for i := range b {
		b[i] = make([]float32, frames)
	}
	return b
}

// Events returns the event channel (unused when a Listener is set).
func (h *Host) Events() <-chan Event {
	return h.events
}

// SampleRate returns the sample rate in Hz.
func (h *Host) SampleRate() float64 { return h.opts.SampleRate }

// BlockSize returns the frames rendered per block.
func (h *Host) BlockSize() int { return h.opts.BlockSize }

// Blocks returns the number of blocks processed so far.
func (h *Host) Blocks() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.blocks
}

func (h *Host) enqueue(c command) {
	h.mu.Lock()
	h.queue = append(h.queue, c)
	h.mu.Unlock()
}

// SendMidi queues a raw MIDI message for the next block.
func (h *Host) SendMidi(raw midi.Raw) {
	msg := append(midi.Raw(nil), raw...)
	h.enqueue(command{raw: msg, run: func(e engine.Engine) error {
		return h.tr.In(e, msg)
	}})
}

// Panic queues all-notes-off on every channel.
func (h *Host) Panic() {
	for ch := uint8(0); ch < 16; ch++ {
		h.SendMidi(midi.Raw{midi.ControlChange | ch, midi.AllNotesOff, 0})
	}
}

// SetFloatParameter queues a float for a declared parameter.
func (h *Host) SetFloatParameter(name string, value float32) error {
	hash, ok := h.opts.Parameters.Hash(name)
	if !ok {
		return fmt.Errorf("unknown parameter %q", name)
	}
	h.enqueue(command{run: func(e engine.Engine) error {
		return e.SendFloat(hash, value)
	}})
	return nil
}

// SendEvent queues a bang for a declared event.
func (h *Host) SendEvent(name string) error {
	hash, ok := h.opts.Events.Hash(name)
	if !ok {
		return fmt.Errorf("unknown event %q", name)
	}
	h.enqueue(command{run: func(e engine.Engine) error {
		return e.SendBang(hash)
	}})
	return nil
}

// SendSymbol queues a symbol for any receiver, declared or not.
func (h *Host) SendSymbol(receiver, s string) {
	hash := heavy.StringToHash(receiver)
	h.enqueue(command{run: func(e engine.Engine) error {
		return e.SendSymbol(hash, s)
	}})
}

// FillTable queues replacing a declared table's contents with buf.
func (h *Host) FillTable(name string, buf []float32) error {
	hash, ok := h.opts.Tables.Hash(name)
	if !ok {
		return fmt.Errorf("table %q doesn't exist in the patch", name)
	}
	data := append([]float32(nil), buf...)
	h.enqueue(command{run: func(e engine.Engine) error {
		return e.SetTable(hash, data)
	}})
	return nil
}

// ProcessBlock delivers queued commands in order, then renders one
// block. The returned buffers are reused by the next call.
func (h *Host) ProcessBlock() [][]float32 {
	h.mu.Lock()
	queue := h.queue
	h.queue = nil
	block := h.blocks
	h.blocks++
	h.mu.Unlock()

	for _, c := range queue {
		if c.raw != nil {
			h.emit(Event{Type: EventMidiIn, Block: block, Raw: c.raw})
		}
		if err := c.run(h.eng); err != nil {
			h.emit(Event{Type: EventError, Block: block, Err: err})
		}
	}

	if err := h.process(); err != nil {
		engine.Silence(h.out, h.opts.BlockSize)
		h.emit(Event{Type: EventError, Block: block, Err: err})
	}
	debug.LogEvery(1000, "host", "processed block %d", block)
	return h.out
}

func (h *Host) process() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("engine panic: %v", r)
		}
	}()
	return h.eng.Process(h.in, h.out, h.opts.BlockSize)
}

func (h *Host) onSend(name string, hash uint32, msg heavy.Message) {
	if h.tr.Receivers().IsMidiOut(name) {
		if raw := h.tr.Out(name, msg); len(raw) > 0 {
			h.emit(Event{Type: EventMidiOut, Block: h.current(), Raw: raw, Name: name})
			return
		}
	}
	h.emit(Event{Type: EventSend, Block: h.current(), Name: name, Value: msg.Float(0)})
}

func (h *Host) onPrint(name, text string, timeMs float64) {
	h.emit(Event{
		Type:  EventPrint,
		Block: h.current(),
		Name:  name,
		Text:  fmt.Sprintf("%s [%.3f]: %s", name, timeMs/1000, text),
	})
}

// current is the block being processed.
func (h *Host) current() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.blocks == 0 {
		return 0
	}
	return h.blocks - 1
}

func (h *Host) emit(ev Event) {
	if h.opts.Listener != nil {
		h.opts.Listener(ev)
		return
	}
	select {
	case h.events <- ev:
	default:
		debug.LogEvery(100, "host", "event queue full, dropping %s", ev.Type)
	}
}

// Run processes blocks in real time until ctx is cancelled. sink, if
// set, receives each rendered block.
func (h *Host) Run(ctx context.Context, sink func([][]float32)) {
	period := time.Duration(float64(time.Second) * float64(h.opts.BlockSize) / h.opts.SampleRate)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			out := h.ProcessBlock()
			if sink != nil {
				sink(out)
			}
		}
	}
}

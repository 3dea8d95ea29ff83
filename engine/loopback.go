package engine

import (
	"hvmidi/heavy"
)

type pending struct {
	name string
	hash uint32
	args heavy.Args
}

// Loopback behaves like a patch that wires every MIDI input object to
// its output twin ([notein] -> [noteout] and so on). Raw [midiin] and
// realtime messages are swallowed. Floats and bangs to other receivers
// are echoed back under the receiver's name. Sends are queued and
// delivered to the send hook during Process, in arrival order.
type Loopback struct {
	rx        *heavy.Receivers
	names     heavy.Table
	thru      map[uint32]string
	queue     []pending
	outputs   int
	closed    bool
	sendHook  heavy.SendHook
	printHook heavy.PrintHook
}

// NewLoopback creates a thru patch. names resolves receiver hashes for
// echoed float and bang sends.
func NewLoopback(rx *heavy.Receivers, names heavy.Table, outputs int) *Loopback {
	if rx == nil {
		rx = heavy.DefaultReceivers()
	}
	return &Loopback{
		rx:      rx,
		names:   names,
		outputs: outputs,
		thru: map[uint32]string{
			rx.NoteIn:      heavy.NameNoteOut,
			rx.CtlIn:       heavy.NameCtlOut,
			rx.PgmIn:       heavy.NamePgmOut,
			rx.TouchIn:     heavy.NameTouchOut,
			rx.PolyTouchIn: heavy.NamePolyTouchOut,
			rx.BendIn:      heavy.NameBendOut,
		},
	}
}

func (l *Loopback) push(name string, args heavy.Args) error {
	if l.closed {
		return ErrClosed
	}
	l.queue = append(l.queue, pending{name: name, hash: heavy.StringToHash(name), args: args})
	return nil
}

func (l *Loopback) SendMessage(receiver uint32, args ...float32) error {
	if l.closed {
		return ErrClosed
	}
	if name, ok := l.thru[receiver]; ok {
		return l.push(name, append(heavy.Args(nil), args...))
	}
	if receiver == l.rx.MidiIn || receiver == l.rx.MidiRealtimeIn {
		return nil
	}
	return l.push(l.names.Describe(receiver), append(heavy.Args(nil), args...))
}

func (l *Loopback) SendFloat(receiver uint32, f float32) error {
	return l.SendMessage(receiver, f)
}

func (l *Loopback) SendBang(receiver uint32) error {
	return l.SendMessage(receiver)
}

func (l *Loopback) SendSymbol(receiver uint32, s string) error {
	if l.closed {
		return ErrClosed
	}
	if l.printHook != nil {
		l.printHook(l.names.Describe(receiver), s, 0)
	}
	return nil
}

func (l *Loopback) SetTable(table uint32, data []float32) error {
	if l.closed {
		return ErrClosed
	}
	return nil
}

func (l *Loopback) NumInputChannels() int  { return 0 }
func (l *Loopback) NumOutputChannels() int { return l.outputs }

func (l *Loopback) Process(in, out [][]float32, n int) error {
	if l.closed {
		return ErrClosed
	}
	queue := l.queue
	l.queue = nil
	if l.sendHook != nil {
		for _, p := range queue {
			l.sendHook(p.name, p.hash, p.args)
		}
	}
	Silence(out, n)
	return nil
}

func (l *Loopback) SetSendHook(hook heavy.SendHook)   { l.sendHook = hook }
func (l *Loopback) SetPrintHook(hook heavy.PrintHook) { l.printHook = hook }

func (l *Loopback) Close() error {
	l.closed = true
	l.queue = nil
	return nil
}

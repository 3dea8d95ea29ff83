package midi

import (
	"fmt"
	"sync"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	"hvmidi/debug"
)

// Port is a MIDI input with an optional matching output
type Port struct {
	id       string
	inPort   drivers.In
	outPort  drivers.Out
	send     func(msg gomidi.Message) error
	stopFunc func()

	mu     sync.Mutex
	closed bool
	events chan Raw
}

// OpenPort starts listening on inPort and opens outPort for sending.
// Either may be nil.
func OpenPort(id string, inPort drivers.In, outPort drivers.Out) (*Port, error) {
	p := &Port{
		id:      id,
		inPort:  inPort,
		outPort: outPort,
		events:  make(chan Raw, 256),
	}

	if outPort != nil {
		send, err := gomidi.SendTo(outPort)
		if err != nil {
			return nil, fmt.Errorf("open output: %w", err)
		}
		p.send = send
	}

	if inPort != nil {
		stop, err := gomidi.ListenTo(inPort, p.receive,
			gomidi.UseActiveSense(),
			gomidi.HandleError(func(err error) {
				debug.Log("midi", "%s: %v", id, err)
			}),
		)
		if err != nil {
			return nil, fmt.Errorf("open input: %w", err)
		}
		p.stopFunc = stop
	}

	return p, nil
}

func (p *Port) receive(msg gomidi.Message, timestampms int32) {
	raw := Raw(append([]byte(nil), msg.Bytes()...))

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	select {
	case p.events <- raw:
	default:
		debug.LogEvery(100, "midi", "%s: input queue full, dropping %s", p.id, raw)
	}
}

func (p *Port) ID() string {
	return p.id
}

func (p *Port) Events() <-chan Raw {
	return p.events
}

func (p *Port) Send(msg Raw) error {
	if p.send == nil || len(msg) == 0 {
		return nil
	}
	return p.send(gomidi.Message(msg))
}

func (p *Port) Close() error {
	if p.stopFunc != nil {
		p.stopFunc()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.events)
	}
	return nil
}

// OpenOutput opens the first output port whose name contains pattern.
func OpenOutput(pattern string) (*Port, error) {
	for _, out := range gomidi.GetOutPorts() {
		if matches(out.String(), pattern) {
			return OpenPort(out.String(), nil, out)
		}
	}
	return nil, fmt.Errorf("no output port matching %q", pattern)
}

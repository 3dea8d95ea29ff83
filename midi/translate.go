package midi

import (
	"errors"

	"hvmidi/debug"
	"hvmidi/heavy"
)

// Translator maps raw MIDI to engine receiver sends and engine sends back
// to raw MIDI. It holds no mutable state and is safe for concurrent use.
type Translator struct {
	rx *heavy.Receivers
}

// NewTranslator creates a translator for the given receiver set. A nil
// set means heavy.DefaultReceivers().
func NewTranslator(rx *heavy.Receivers) *Translator {
	if rx == nil {
		rx = heavy.DefaultReceivers()
	}
	return &Translator{rx: rx}
}

// Receivers returns the receiver set the translator was built with.
func (t *Translator) Receivers() *heavy.Receivers {
	return t.rx
}

// In delivers one incoming MIDI message to the engine. Every message is
// also forwarded to the raw [midiin] receiver; realtime bytes go to the
// realtime receiver only. Unknown commands are ignored. Errors come from
// the sender, never from translation.
func (t *Translator) In(s heavy.Sender, msg Raw) error {
	if len(msg) == 0 {
		return nil
	}

	status := msg.Status()
	command := msg.Command()
	channel := float32(msg.Channel())
	data1 := float32(msg.Data(1))
	data2 := float32(msg.Data(2))

	var errs []error
	send := func(receiver uint32, args ...float32) {
		if err := s.SendMessage(receiver, args...); err != nil {
			errs = append(errs, err)
		}
	}

	// all events to [midiin]
	send(t.rx.MidiIn, data1, channel)
	send(t.rx.MidiIn, data2, channel)

	if IsRealtime(status) {
		send(t.rx.MidiRealtimeIn, float32(status))
	}

	switch command {
	case NoteOff:
		send(t.rx.NoteIn, data1, 0, channel)
	case NoteOn:
		send(t.rx.NoteIn, data1, data2, channel)
	case PolyTouch:
		send(t.rx.PolyTouchIn, data2, data1, channel)
	case ControlChange:
		send(t.rx.CtlIn, data2, data1, channel)
	case ProgramChange:
		send(t.rx.PgmIn, data1, channel)
	case ChannelTouch:
		send(t.rx.TouchIn, data1, channel)
	case PitchBend:
		value := uint32(msg.Data(2))<<7 | uint32(msg.Data(1))
		send(t.rx.BendIn, float32(value), channel)
	}

	return errors.Join(errs...)
}

// Out converts an engine send into raw MIDI. Names other than the seven
// MIDI output sends yield nil and a warning in the debug log.
func (t *Translator) Out(name string, msg heavy.Message) Raw {
	arg := func(i int) uint8 { return toByte(msg.Float(i)) }
	ch := func(i int) uint8 { return channelOf(msg.Float(i)) }

	switch name {
	case heavy.NameNoteOut:
		note, velocity := arg(0), arg(1)
		status := NoteOff
		if msg.Float(1) > 0 {
			status = NoteOn
		}
		return Raw{status | ch(2), note, velocity}

	case heavy.NameCtlOut:
		return Raw{ControlChange | ch(2), arg(1), arg(0)}

	case heavy.NamePgmOut:
		return Raw{ProgramChange | ch(1), arg(0)}

	case heavy.NameTouchOut:
		return Raw{ChannelTouch | ch(1), arg(0)}

	case heavy.NamePolyTouchOut:
		return Raw{PolyTouch | ch(2), arg(1), arg(0)}

	case heavy.NameBendOut:
		value := int32(msg.Float(0))
		return Raw{PitchBend | ch(1), uint8(value & 0x7F), uint8((value >> 7) & 0x7F)}

	case heavy.NameMidiOut:
		first := arg(0)
		if first == 0xC0 || first == 0xD0 {
			return Raw{first, arg(1)}
		}
		return Raw{first, arg(1), arg(2)}

	default:
		debug.Log("translate", "unhandled send name: %s", name)
		return nil
	}
}

func toByte(f float32) uint8 {
	return uint8(int32(f))
}

// channelOf drops Pd "ports": channels above 15 wrap.
func channelOf(f float32) uint8 {
	c := int32(f) % 16
	if c < 0 {
		c += 16
	}
	return uint8(c)
}

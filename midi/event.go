package midi

import (
	"fmt"
	"strings"
)

// Channel voice commands (high nibble of the status byte)
const (
	NoteOff       uint8 = 0x80
	NoteOn        uint8 = 0x90
	PolyTouch     uint8 = 0xA0
	ControlChange uint8 = 0xB0
	ProgramChange uint8 = 0xC0
	ChannelTouch  uint8 = 0xD0
	PitchBend     uint8 = 0xE0
	SystemMessage uint8 = 0xF0
)

const (
	AllNotesOff     uint8 = 123 // controller number
	PitchBendCenter       = 8192
)

// Realtime status bytes
const (
	TimingClock   uint8 = 0xF8
	Start         uint8 = 0xFA
	Continue      uint8 = 0xFB
	Stop          uint8 = 0xFC
	ActiveSensing uint8 = 0xFE
	SystemReset   uint8 = 0xFF
)

// IsRealtime reports whether status is one of the six realtime bytes
// forwarded to the realtime receiver.
func IsRealtime(status uint8) bool {
	switch status {
	case TimingClock, Start, Continue, Stop, ActiveSensing, SystemReset:
		return true
	}
	return false
}

// Raw is a MIDI message as it appears on the wire, status byte first.
type Raw []byte

// Status returns the status byte, or 0 for an empty message.
func (r Raw) Status() uint8 {
	if len(r) == 0 {
		return 0
	}
	return r[0]
}

// Command returns the high nibble of the status byte.
func (r Raw) Command() uint8 {
	return r.Status() & 0xF0
}

// Channel returns the low nibble of the status byte.
func (r Raw) Channel() uint8 {
	return r.Status() & 0x0F
}

// Data returns data byte i (1 or 2), or 0 when absent.
func (r Raw) Data(i int) uint8 {
	if i < 1 || i >= len(r) {
		return 0
	}
	return r[i]
}

func (r Raw) String() string {
	parts := make([]string, len(r))
	for i, b := range r {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, " ")
}

// CommandName names a channel voice command or realtime status.
func CommandName(status uint8) string {
	switch status {
	case TimingClock:
		return "clock"
	case Start:
		return "start"
	case Continue:
		return "continue"
	case Stop:
		return "stop"
	case ActiveSensing:
		return "active-sense"
	case SystemReset:
		return "reset"
	}
	switch status & 0xF0 {
	case NoteOff:
		return "note-off"
	case NoteOn:
		return "note-on"
	case PolyTouch:
		return "poly-touch"
	case ControlChange:
		return "cc"
	case ProgramChange:
		return "program"
	case ChannelTouch:
		return "touch"
	case PitchBend:
		return "bend"
	}
	return "system"
}

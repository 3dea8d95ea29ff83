package host

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"gitlab.com/gomidi/midi/v2/smf"

	"hvmidi/midi"
)

// RenderOptions controls an offline render.
type RenderOptions struct {
	// Tail keeps rendering after the last input event.
	Tail time.Duration

	// Audio receives 16-bit PCM. Optional.
	Audio io.WriteSeeker

	// Midi receives MIDI produced by the patch as a Standard MIDI File.
	// Optional.
	Midi io.Writer
}

// RenderStats summarises a render.
type RenderStats struct {
	Blocks  int
	Frames  int
	MidiIn  int
	MidiOut int
	Errors  int
}

// TimedMessage is a MIDI message at an absolute time in microseconds.
type TimedMessage struct {
	Micros int64
	Raw    midi.Raw
}

// ReadSMF returns the channel messages of a Standard MIDI File with
// their absolute times, merged across tracks.
func ReadSMF(r io.Reader) ([]TimedMessage, error) {
	var events []TimedMessage
	tr := smf.ReadTracksFrom(r).Do(func(ev smf.TrackEvent) {
		b := []byte(ev.Message)
		if len(b) == 0 || b[0] < 0x80 || b[0] >= 0xF0 {
			return
		}
		events = append(events, TimedMessage{Micros: ev.AbsMicroSeconds, Raw: midi.Raw(append([]byte(nil), b...))})
	})
	if err := tr.Error(); err != nil {
		return nil, fmt.Errorf("read smf: %w", err)
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].Micros < events[j].Micros })
	return events, nil
}

// Render plays a Standard MIDI File through the host as fast as possible.
// Each input event is delivered at the start of the block containing its
// time. The host must have been created without a Listener.
func Render(h *Host, in io.Reader, opts RenderOptions) (RenderStats, error) {
	var stats RenderStats

	events, err := ReadSMF(in)
	if err != nil {
		return stats, err
	}

	n := h.opts.BlockSize
	rate := h.opts.SampleRate
	channels := len(h.out)

	var end int64
	if len(events) > 0 {
		end = events[len(events)-1].Micros
	}
	blocks := frameAt(end+opts.Tail.Microseconds(), rate)/n + 1

	var enc *wav.Encoder
	if opts.Audio != nil {
		enc = wav.NewEncoder(opts.Audio, int(rate), 16, channels, 1)
	}
	pcm := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: int(rate)},
		Data:           make([]int, n*channels),
		SourceBitDepth: 16,
	}

	var out []TimedMessage
	next := 0
	for b := 0; b < blocks; b++ {
		for next < len(events) && frameAt(events[next].Micros, rate)/n <= b {
			h.SendMidi(events[next].Raw)
			next++
			stats.MidiIn++
		}

		buf := h.ProcessBlock()
		at := int64(float64(b*n) * 1e6 / rate)
		stats.Errors += h.drain(func(ev Event) {
			if ev.Type == EventMidiOut {
				out = append(out, TimedMessage{Micros: at, Raw: ev.Raw})
			}
		})

		if enc != nil {
			for i := 0; i < n; i++ {
				for c := 0; c < channels; c++ {
					pcm.Data[i*channels+c] = toPCM16(buf[c][i])
				}
			}
			if err := enc.Write(pcm); err != nil {
				return stats, fmt.Errorf("write wav: %w", err)
			}
		}
		stats.Blocks++
		stats.Frames += n
	}

	if enc != nil {
		if err := enc.Close(); err != nil {
			return stats, fmt.Errorf("close wav: %w", err)
		}
	}

	stats.MidiOut = len(out)
	if opts.Midi != nil {
		if err := writeSMF(opts.Midi, out); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

// frameAt is the frame containing time micros.
func frameAt(micros int64, rate float64) int {
	return int(float64(micros) * rate / 1e6)
}

// drain empties the event channel and returns the number of errors seen.
func (h *Host) drain(fn func(Event)) int {
	errs := 0
	for {
		select {
		case ev := <-h.events:
			if ev.Type == EventError {
				errs++
			}
			fn(ev)
		default:
			return errs
		}
	}
}

func toPCM16(f float32) int {
	if f > 1 {
		f = 1
	} else if f < -1 {
		f = -1
	}
	return int(f * 32767)
}

const renderBPM = 120

func writeSMF(w io.Writer, events []TimedMessage) error {
	ticks := smf.MetricTicks(960)
	s := smf.New()
	s.TimeFormat = ticks

	var tr smf.Track
	tr.Add(0, smf.MetaTempo(renderBPM))
	var last int64
	for _, ev := range events {
		delta := ticks.Ticks(renderBPM, time.Duration(ev.Micros-last)*time.Microsecond)
		tr.Add(delta, ev.Raw)
		last = ev.Micros
	}
	tr.Close(0)

	if err := s.Add(tr); err != nil {
		return fmt.Errorf("write smf: %w", err)
	}
	if _, err := s.WriteTo(w); err != nil {
		return fmt.Errorf("write smf: %w", err)
	}
	return nil
}

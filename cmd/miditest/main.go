package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"hvmidi/engine"
	"hvmidi/engine/wasm"
	"hvmidi/heavy"
	"hvmidi/host"
	"hvmidi/midi"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}

	var err error
	args := os.Args[2:]
	switch os.Args[1] {
	case "list":
		listPorts()
	case "poll":
		pollDevices()
	case "hash":
		err = hashNames(os.Stdout, args)
	case "in":
		err = translateIn(os.Stdout, args)
	case "out":
		err = translateOut(os.Stdout, args)
	case "thru":
		err = thru(args)
	case "render":
		err = render(args)
	default:
		usage()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("Heavy MIDI test tools")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  list                                  - List all MIDI ports")
	fmt.Println("  poll                                  - Poll for device changes")
	fmt.Println("  hash <name>...                        - Print receiver hashes")
	fmt.Println("  in <hex bytes>                        - Show receiver messages for MIDI bytes")
	fmt.Println("  out <name> <args>...                  - Show MIDI bytes for a patch send")
	fmt.Println("  thru <in.mid> <out.mid>               - Play a file through the loopback patch")
	fmt.Println("  render <patch.wasm> <patch> <in.mid> <out.wav> [out.mid]")
	fmt.Println("                                        - Render a file through a patch")
}

func listPorts() {
	fmt.Println("=== MIDI Input Ports ===")
	fmt.Println("(waiting up to 3 seconds...)")

	type result struct {
		ins  []drivers.In
		outs []drivers.Out
	}
	ch := make(chan result, 1)
	go func() {
		ins := gomidi.GetInPorts()
		outs := gomidi.GetOutPorts()
		ch <- result{ins: ins, outs: outs}
	}()

	select {
	case r := <-ch:
		for i, p := range r.ins {
			fmt.Printf("  %d: %s\n", i, p.String())
		}
		fmt.Println("\n=== MIDI Output Ports ===")
		for i, p := range r.outs {
			fmt.Printf("  %d: %s\n", i, p.String())
		}
	case <-time.After(3 * time.Second):
		fmt.Println("\nTIMEOUT! MIDI driver is hung.")
	}
}

func pollDevices() {
	fmt.Println("Polling for device changes every 2 seconds...")
	fmt.Println("Connect/disconnect devices to test. Ctrl+C to exit.")

	lastIn := ""
	lastOut := ""

	for {
		var inNames, outNames []string
		for _, p := range gomidi.GetInPorts() {
			inNames = append(inNames, p.String())
		}
		for _, p := range gomidi.GetOutPorts() {
			outNames = append(outNames, p.String())
		}

		currentIn := strings.Join(inNames, ",")
		currentOut := strings.Join(outNames, ",")

		if currentIn != lastIn || currentOut != lastOut {
			fmt.Printf("\n[%s] Device change detected!\n", time.Now().Format("15:04:05"))
			fmt.Printf("  Inputs: %v\n", inNames)
			fmt.Printf("  Outputs: %v\n", outNames)

			lastIn = currentIn
			lastOut = currentOut
		}

		time.Sleep(2 * time.Second)
	}
}

func hashNames(w io.Writer, names []string) error {
	if len(names) == 0 {
		names = heavy.DefaultReceivers().In.Names()
	}
	for _, name := range names {
		fmt.Fprintf(w, "0x%08X  %s\n", heavy.StringToHash(name), name)
	}
	return nil
}

// printSender prints each receiver message instead of delivering it.
type printSender struct {
	w     io.Writer
	names heavy.Table
}

func (p printSender) SendMessage(receiver uint32, args ...float32) error {
	_, err := fmt.Fprintf(p.w, "%-20s %v\n", p.names.Describe(receiver), heavy.Args(args))
	return err
}

// parseRaw accepts "90 3C 7F", "903c7f" or "0x90 0x3c 0x7f".
func parseRaw(args []string) (midi.Raw, error) {
	s := strings.Join(args, "")
	s = strings.ReplaceAll(s, "0x", "")
	s = strings.ReplaceAll(s, "0X", "")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("bad MIDI bytes: %w", err)
	}
	if len(b) == 0 {
		return nil, fmt.Errorf("no MIDI bytes")
	}
	return midi.Raw(b), nil
}

func translateIn(w io.Writer, args []string) error {
	raw, err := parseRaw(args)
	if err != nil {
		return err
	}
	tr := midi.NewTranslator(nil)
	fmt.Fprintf(w, "%s (%s)\n", raw, midi.CommandName(raw.Status()))
	return tr.In(printSender{w: w, names: tr.Receivers().In}, raw)
}

func translateOut(w io.Writer, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: out <name> <args>...")
	}
	msg := make(heavy.Args, 0, len(args)-1)
	for _, a := range args[1:] {
		f, err := strconv.ParseFloat(a, 32)
		if err != nil {
			return fmt.Errorf("bad argument %q: %w", a, err)
		}
		msg = append(msg, float32(f))
	}

	raw := midi.NewTranslator(nil).Out(args[0], msg)
	if raw == nil {
		return fmt.Errorf("%s is not a MIDI output", args[0])
	}
	fmt.Fprintf(w, "%s (%s)\n", raw, midi.CommandName(raw.Status()))
	return nil
}

func thru(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: thru <in.mid> <out.mid>")
	}
	eng := engine.NewLoopback(heavy.DefaultReceivers(), heavy.Table{}, 2)
	defer eng.Close()
	return renderFiles(host.New(eng, nil, host.Options{}), args[0], "", args[1])
}

func render(args []string) error {
	if len(args) < 4 || len(args) > 5 {
		return fmt.Errorf("usage: render <patch.wasm> <patch> <in.mid> <out.wav> [out.mid]")
	}
	eng, err := wasm.Load(context.Background(), args[0], wasm.Options{Patch: args[1]})
	if err != nil {
		return err
	}
	defer eng.Close()

	var midiOut string
	if len(args) == 5 {
		midiOut = args[4]
	}
	return renderFiles(host.New(eng, nil, host.Options{}), args[2], args[3], midiOut)
}

func renderFiles(h *host.Host, inPath, wavPath, midPath string) error {
	in, err := os.Open(inPath)
	if err != nil {
		return err
	}
	defer in.Close()

	var opts host.RenderOptions
	opts.Tail = time.Second
	if wavPath != "" {
		f, err := os.Create(wavPath)
		if err != nil {
			return err
		}
		defer f.Close()
		opts.Audio = f
	}
	if midPath != "" {
		f, err := os.Create(midPath)
		if err != nil {
			return err
		}
		defer f.Close()
		opts.Midi = f
	}

	stats, err := host.Render(h, in, opts)
	if err != nil {
		return err
	}
	fmt.Printf("%d blocks, %d frames, %d in, %d out, %d errors\n",
		stats.Blocks, stats.Frames, stats.MidiIn, stats.MidiOut, stats.Errors)
	return nil
}

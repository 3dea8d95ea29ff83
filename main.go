package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"

	"hvmidi/config"
	"hvmidi/debug"
	"hvmidi/engine"
	"hvmidi/engine/wasm"
	"hvmidi/heavy"
	"hvmidi/host"
	"hvmidi/midi"
	"hvmidi/theme"
	"hvmidi/tui"
)

func main() {
	configPath := flag.String("config", "", "config file (default ~/.config/hvmidi/config.json)")
	plain := flag.Bool("plain", false, "print events instead of running the monitor")
	flag.Parse()

	if err := run(*configPath, *plain); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, plain bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if cfg.Debug {
		if err := debug.Enable(); err != nil {
			return fmt.Errorf("debug log: %w", err)
		}
		defer debug.Disable()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	eng, err := openEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	var output *midi.Port
	if cfg.Midi.Output != "" {
		output, err = midi.OpenOutput(cfg.Midi.Output)
		if err != nil {
			return err
		}
		defer output.Close()
	}

	// MIDI out goes straight to the port from the processing goroutine;
	// everything is also copied to the display.
	events := make(chan host.Event, 1024)
	h := host.New(eng, nil, host.Options{
		SampleRate: cfg.Engine.SampleRate,
		BlockSize:  cfg.Engine.BlockSize,
		Parameters: cfg.Patch.ParameterTable(),
		Events:     cfg.Patch.EventTable(),
		Tables:     cfg.Patch.TableNames(),
		Listener: func(ev host.Event) {
			if ev.Type == host.EventMidiOut && output != nil {
				if err := output.Send(ev.Raw); err != nil {
					debug.Log("midi", "send %s: %v", ev.Raw, err)
				}
			}
			select {
			case events <- ev:
			default:
				debug.LogEvery(100, "host", "display behind, dropping %s", ev.Type)
			}
		},
	})
	// Stops before the engine and port are closed.
	stop := runHost(ctx, h)
	defer stop()

	var deviceMgr *midi.DeviceManager
	if cfg.Midi.AutoConnect {
		deviceMgr = midi.NewDeviceManager(cfg.Midi.Inputs...)
		go deviceMgr.Run(ctx)
	}

	patch := cfg.Engine.Patch
	switch cfg.Engine.Type {
	case config.EngineLoopback:
		patch = "loopback"
	case config.EngineRecorder:
		patch = "dry run"
	}

	if plain || !isatty.IsTerminal(os.Stdout.Fd()) {
		return runPlain(ctx, h, events, deviceMgr)
	}

	th, err := loadTheme(cfg.UI.Palette)
	if err != nil {
		return err
	}
	m := tui.NewModel(h, events, deviceMgr, th, patch, cfg.UI.LogSize)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// runHost processes blocks in the background. stop cancels the loop and
// waits for the block in flight to finish.
func runHost(ctx context.Context, h *host.Host) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.Run(ctx, nil)
	}()
	return func() {
		cancel()
		wg.Wait()
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Load()
	}
	return config.LoadFile(path)
}

func loadTheme(path string) (*theme.Theme, error) {
	if path == "" {
		return theme.New(nil), nil
	}
	palette, err := theme.LoadGPL(path)
	if err != nil {
		return nil, fmt.Errorf("palette: %w", err)
	}
	return theme.New(palette), nil
}

func openEngine(ctx context.Context, cfg *config.Config) (engine.Engine, error) {
	switch cfg.Engine.Type {
	case config.EngineWasm:
		eng, err := wasm.Load(ctx, cfg.Engine.Module, wasm.Options{
			Patch:         cfg.Engine.Patch,
			SampleRate:    cfg.Engine.SampleRate,
			BlockSize:     cfg.Engine.BlockSize,
			PoolKB:        cfg.Engine.PoolKB,
			InputQueueKB:  cfg.Engine.InputQueueKB,
			OutputQueueKB: cfg.Engine.OutputQueueKB,
		})
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", cfg.Engine.Module, err)
		}
		return eng, nil
	case config.EngineLoopback, "":
		return engine.NewLoopback(heavy.DefaultReceivers(), cfg.Patch.Names(), 2), nil
	case config.EngineRecorder:
		return engine.NewRecorder(2), nil
	}
	return nil, fmt.Errorf("unknown engine type %q", cfg.Engine.Type)
}

// runPlain prints events one per line until ctx is cancelled.
func runPlain(ctx context.Context, h *host.Host, events <-chan host.Event, deviceMgr *midi.DeviceManager) error {
	fmt.Printf("hvmidi  %.0fHz/%d\n", h.SampleRate(), h.BlockSize())

	var devices <-chan midi.DeviceEvent
	if deviceMgr != nil {
		devices = deviceMgr.Events()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-events:
			fmt.Printf("%8d %s\n", ev.Block, ev)
		case dev, ok := <-devices:
			if !ok {
				devices = nil
				continue
			}
			switch dev.Type {
			case midi.DeviceConnected:
				fmt.Printf("connected %s\n", dev.ID)
				go func(c midi.Controller) {
					for raw := range c.Events() {
						h.SendMidi(raw)
					}
				}(dev.Controller)
			case midi.DeviceDisconnected:
				fmt.Printf("disconnected %s\n", dev.ID)
			}
		}
	}
}

package midi

import (
	"context"
	"strings"
	"sync"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // Register MIDI driver

	"hvmidi/debug"
)

// DeviceEvent is emitted when inputs connect/disconnect
type DeviceEvent struct {
	Type       DeviceEventType
	Controller Controller
	ID         string
}

type DeviceEventType int

const (
	DeviceConnected DeviceEventType = iota
	DeviceDisconnected
)

// DeviceManager handles hot-plug detection of MIDI inputs
type DeviceManager struct {
	patterns    []string
	controllers map[string]Controller
	mu          sync.RWMutex
	events      chan DeviceEvent
	pollRate    time.Duration
}

// NewDeviceManager watches for inputs whose name contains any of
// patterns (case-insensitive). An empty pattern list accepts every port.
func NewDeviceManager(patterns ...string) *DeviceManager {
	return &DeviceManager{
		patterns:    patterns,
		controllers: make(map[string]Controller),
		events:      make(chan DeviceEvent, 16),
		pollRate:    time.Second,
	}
}

// Events returns a channel of device connect/disconnect events
func (dm *DeviceManager) Events() <-chan DeviceEvent {
	return dm.events
}

// Controllers returns a snapshot of connected inputs
func (dm *DeviceManager) Controllers() map[string]Controller {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	snapshot := make(map[string]Controller, len(dm.controllers))
	for k, v := range dm.controllers {
		snapshot[k] = v
	}
	return snapshot
}

// Run starts the polling loop (blocking - run in goroutine)
func (dm *DeviceManager) Run(ctx context.Context) {
	ticker := time.NewTicker(dm.pollRate)
	defer ticker.Stop()

	// Initial scan
	dm.scan()

	for {
		select {
		case <-ctx.Done():
			dm.closeAll()
			close(dm.events)
			return
		case <-ticker.C:
			dm.scan()
		}
	}
}

func (dm *DeviceManager) scan() {
	// Get current MIDI ports with timeout (CoreMIDI can hang)
	ch := make(chan []drivers.In, 1)
	go func() {
		ch <- gomidi.GetInPorts()
	}()

	var inPorts []drivers.In
	select {
	case inPorts = <-ch:
	case <-time.After(3 * time.Second):
		debug.Log("midi", "port scan timed out")
		return
	}

	seenIDs := make(map[string]bool)

	for _, inPort := range inPorts {
		id := inPort.String()
		if !dm.accepts(id) {
			continue
		}
		seenIDs[id] = true

		dm.mu.RLock()
		_, exists := dm.controllers[id]
		dm.mu.RUnlock()
		if exists {
			continue
		}

		port, err := OpenPort(id, inPort, nil)
		if err != nil {
			debug.Log("midi", "open %s: %v", id, err)
			continue
		}

		dm.mu.Lock()
		dm.controllers[id] = port
		dm.mu.Unlock()

		debug.Log("midi", "connected %s", id)
		dm.events <- DeviceEvent{
			Type:       DeviceConnected,
			Controller: port,
			ID:         id,
		}
	}

	// Check for disconnects
	dm.mu.Lock()
	var toRemove []string
	for id := range dm.controllers {
		if !seenIDs[id] {
			toRemove = append(toRemove, id)
		}
	}
	for _, id := range toRemove {
		dm.controllers[id].Close()
		delete(dm.controllers, id)
		debug.Log("midi", "disconnected %s", id)
		dm.events <- DeviceEvent{
			Type: DeviceDisconnected,
			ID:   id,
		}
	}
	dm.mu.Unlock()
}

func (dm *DeviceManager) accepts(name string) bool {
	if len(dm.patterns) == 0 {
		return true
	}
	for _, p := range dm.patterns {
		if matches(name, p) {
			return true
		}
	}
	return false
}

func (dm *DeviceManager) closeAll() {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	for _, c := range dm.controllers {
		c.Close()
	}
	dm.controllers = make(map[string]Controller)
}

func matches(name, pattern string) bool {
	return strings.Contains(strings.ToLower(name), strings.ToLower(pattern))
}

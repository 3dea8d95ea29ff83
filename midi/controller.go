package midi

// Controller is the interface for a connected MIDI device
type Controller interface {
	ID() string

	// Raw messages from the device, in arrival order
	Events() <-chan Raw

	// Send raw bytes to the device output (no-op without an output)
	Send(msg Raw) error

	// Lifecycle
	Close() error
}

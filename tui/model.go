package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"hvmidi/host"
	"hvmidi/midi"
	"hvmidi/theme"
	"hvmidi/widgets"
)

const (
	decayInterval = 80 * time.Millisecond
	decayFactor   = 0.7
	logHeight     = 16
)

type Model struct {
	Host      *host.Host
	DeviceMgr *midi.DeviceManager
	Theme     *theme.Theme
	Patch     string

	events   <-chan host.Event
	log      *widgets.Log
	activity *[16]float64
	inputs   map[string]bool
	counts   map[host.EventType]int
	quitting bool
}

type EventMsg host.Event

type DeviceEventMsg midi.DeviceEvent

type decayMsg struct{}

// NewModel builds the monitor. events carries what the host reports;
// deviceMgr may be nil when auto-connect is off.
func NewModel(h *host.Host, events <-chan host.Event, deviceMgr *midi.DeviceManager, th *theme.Theme, patch string, logSize int) Model {
	return Model{
		Host:      h,
		DeviceMgr: deviceMgr,
		Theme:     th,
		Patch:     patch,
		events:    events,
		log:       widgets.NewLog(logSize),
		activity:  &[16]float64{},
		inputs:    make(map[string]bool),
		counts:    make(map[host.EventType]int),
	}
}

func ListenForEvents(events <-chan host.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return nil
		}
		return EventMsg(ev)
	}
}

func ListenForDevices(deviceMgr *midi.DeviceManager) tea.Cmd {
	if deviceMgr == nil {
		return nil
	}
	return func() tea.Msg {
		event, ok := <-deviceMgr.Events()
		if !ok {
			return nil
		}
		return DeviceEventMsg(event)
	}
}

func decay() tea.Cmd {
	return tea.Tick(decayInterval, func(time.Time) tea.Msg { return decayMsg{} })
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		ListenForEvents(m.events),
		ListenForDevices(m.DeviceMgr),
		decay(),
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit

		case "c":
			m.log.Clear()
			clear(m.counts)

		case "p":
			m.Host.Panic()
			m.log.Add(lipgloss.NewStyle().Foreground(m.Theme.Warning()).Render("panic: all notes off"))
		}

	case EventMsg:
		m.record(host.Event(msg))
		return m, ListenForEvents(m.events)

	case DeviceEventMsg:
		event := midi.DeviceEvent(msg)
		switch event.Type {
		case midi.DeviceConnected:
			m.inputs[event.ID] = true
			m.log.Add(lipgloss.NewStyle().Foreground(m.Theme.Success()).Render("connected " + event.ID))

			// Feed the input into the patch
			go func(c midi.Controller) {
				for raw := range c.Events() {
					m.Host.SendMidi(raw)
				}
			}(event.Controller)
		case midi.DeviceDisconnected:
			delete(m.inputs, event.ID)
			m.log.Add(lipgloss.NewStyle().Foreground(m.Theme.Muted()).Render("disconnected " + event.ID))
		}
		return m, ListenForDevices(m.DeviceMgr)

	case decayMsg:
		for i := range m.activity {
			m.activity[i] *= decayFactor
			if m.activity[i] < 0.05 {
				m.activity[i] = 0
			}
		}
		return m, decay()
	}

	return m, nil
}

func (m Model) record(ev host.Event) {
	m.counts[ev.Type]++

	var style lipgloss.Style
	var sym rune
	switch ev.Type {
	case host.EventMidiIn:
		style, sym = lipgloss.NewStyle().Foreground(m.Theme.FG()), m.Theme.Symbols.In
		m.touch(ev.Raw)
	case host.EventMidiOut:
		style, sym = lipgloss.NewStyle().Foreground(m.Theme.Accent()), m.Theme.Symbols.Out
		m.touch(ev.Raw)
	case host.EventSend:
		style, sym = lipgloss.NewStyle().Foreground(m.Theme.Muted()), m.Theme.Symbols.Send
	case host.EventPrint:
		style, sym = lipgloss.NewStyle().Foreground(m.Theme.Success()), m.Theme.Symbols.Print
	case host.EventError:
		style, sym = lipgloss.NewStyle().Foreground(m.Theme.Warning()), m.Theme.Symbols.Error
	}
	m.log.Add(style.Render(fmt.Sprintf("%c %8d %s", sym, ev.Block, ev)))
}

// touch lights the pad for a channel message.
func (m Model) touch(raw midi.Raw) {
	if raw.Command() < midi.NoteOff || raw.Command() >= midi.SystemMessage {
		return
	}
	m.activity[raw.Channel()] = 1
}

func (m Model) pads() [16][3]uint8 {
	var colors [16][3]uint8
	for i, level := range m.activity {
		colors[i] = m.Theme.RGB(theme.RoleMuted + level*(theme.RoleSuccess-theme.RoleMuted))
	}
	return colors
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	headerStyle := lipgloss.NewStyle().Foreground(m.Theme.Accent())
	dimStyle := lipgloss.NewStyle().Foreground(m.Theme.Muted())

	inputs := "no inputs"
	if len(m.inputs) > 0 {
		names := make([]string, 0, len(m.inputs))
		for id := range m.inputs {
			names = append(names, id)
		}
		sort.Strings(names)
		inputs = strings.Join(names, ", ")
	}

	header := headerStyle.Render(fmt.Sprintf("hvmidi  %s  %.0fHz/%d  block:%d",
		m.Patch, m.Host.SampleRate(), m.Host.BlockSize(), m.Host.Blocks()))
	status := dimStyle.Render(fmt.Sprintf("%s  in:%d out:%d send:%d err:%d", inputs,
		m.counts[host.EventMidiIn], m.counts[host.EventMidiOut],
		m.counts[host.EventSend], m.counts[host.EventError]))

	help := dimStyle.Render(widgets.RenderKeyHelp([]widgets.KeySection{{
		Keys: []widgets.KeyBinding{
			{Key: "c", Desc: "clear log"},
			{Key: "p", Desc: "panic (all notes off)"},
			{Key: "q", Desc: "quit"},
		},
	}}))

	var out strings.Builder
	out.WriteString("\n")
	out.WriteString(header)
	out.WriteString("\n")
	out.WriteString(status)
	out.WriteString("\n\n")
	out.WriteString(widgets.RenderChannelPads(m.pads()))
	out.WriteString("\n\n")
	out.WriteString(m.log.View(logHeight))
	out.WriteString("\n\n")
	out.WriteString(help)

	return out.String()
}

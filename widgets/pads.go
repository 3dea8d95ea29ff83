package widgets

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// RenderPad renders a single colored pad
func RenderPad(color [3]uint8) string {
	style := lipgloss.NewStyle().Foreground(lipgloss.Color(rgbToHex(color)))
	return style.Render("■")
}

// RenderChannelPads renders one pad per MIDI channel with 1-based
// channel numbers above, two columns per pad.
func RenderChannelPads(colors [16][3]uint8) string {
	var nums strings.Builder
	for ch := 1; ch <= 16; ch++ {
		if ch > 1 {
			nums.WriteString(" ")
		}
		nums.WriteString(fmt.Sprintf("%-2d", ch))
	}

	var pads strings.Builder
	for i, c := range colors {
		if i > 0 {
			pads.WriteString(" ")
		}
		pads.WriteString(RenderPad(c))
		pads.WriteString(" ")
	}
	return nums.String() + "\n" + pads.String()
}

// RenderKeyHelp formats key bindings in a friendly way
func RenderKeyHelp(sections []KeySection) string {
	var lines []string
	for _, sec := range sections {
		if sec.Title != "" {
			lines = append(lines, sec.Title)
		}
		for _, k := range sec.Keys {
			lines = append(lines, fmt.Sprintf("  %-12s %s", k.Key, k.Desc))
		}
	}
	return strings.Join(lines, "\n")
}

// KeySection groups related key bindings
type KeySection struct {
	Title string
	Keys  []KeyBinding
}

// KeyBinding is a single key and its description
type KeyBinding struct {
	Key  string
	Desc string
}

func rgbToHex(c [3]uint8) string {
	return fmt.Sprintf("#%02x%02x%02x", c[0], c[1], c[2])
}

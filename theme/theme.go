package theme

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

type Theme struct {
	Palette *Palette
	Symbols Symbols
}

type Symbols struct {
	In    rune // → MIDI into the patch
	Out   rune // ← MIDI from the patch
	Send  rune // · non-MIDI send
	Print rune // ✎ print
	Error rune // ✗ engine error
}

func New(palette *Palette) *Theme {
	if palette == nil {
		palette = Plasma
	}
	return &Theme{
		Palette: palette,
		Symbols: Symbols{
			In:    '→',
			Out:   '←',
			Send:  '·',
			Print: '✎',
			Error: '✗',
		},
	}
}

// Color roles mapped to palette positions (0-1)
const (
	RoleMuted   = 0.2 // purple-magenta
	RoleFG      = 0.4 // pink-purple (readable)
	RoleAccent  = 0.5 // vivid magenta
	RoleWarning = 0.8 // orange
	RoleSuccess = 1.0 // bright yellow
)

// Style helpers

func (t *Theme) FG() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleFG))
}

func (t *Theme) Accent() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleAccent))
}

func (t *Theme) Muted() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleMuted))
}

func (t *Theme) Warning() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleWarning))
}

func (t *Theme) Success() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleSuccess))
}

// RGB returns raw RGB for any normalized value (for pad widgets)
func (t *Theme) RGB(norm float64) RGB {
	return t.Palette.Lookup(norm)
}

func rgbToLipgloss(c RGB) lipgloss.Color {
	return lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", c[0], c[1], c[2]))
}

package theme

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	colorful "github.com/lucasb-eyer/go-colorful"
)

type RGB [3]uint8

type Palette struct {
	Name   string
	Colors []RGB
}

// Plasma is the built-in palette (dark purple through magenta to yellow).
var Plasma = MustParseHex("plasma",
	"#0d0887", "#46039f", "#7201a8", "#9c179e", "#bd3786",
	"#d8576b", "#ed7953", "#fb9f3a", "#fdca26", "#f0f921",
)

// ParseHex builds a palette from #rrggbb strings.
func ParseHex(name string, hexes ...string) (*Palette, error) {
	p := &Palette{Name: name}
	for _, h := range hexes {
		c, err := colorful.Hex(h)
		if err != nil {
			return nil, fmt.Errorf("palette %s: %w", name, err)
		}
		r, g, b := c.RGB255()
		p.Colors = append(p.Colors, RGB{r, g, b})
	}
	if len(p.Colors) == 0 {
		return nil, fmt.Errorf("no colors in palette %s", name)
	}
	return p, nil
}

func MustParseHex(name string, hexes ...string) *Palette {
	p, err := ParseHex(name, hexes...)
	if err != nil {
		panic(err)
	}
	return p
}

func LoadGPL(path string) (*Palette, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	p, err := ReadGPL(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// ReadGPL parses a GIMP palette.
func ReadGPL(r io.Reader) (*Palette, error) {
	p := &Palette{}
	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if strings.HasPrefix(line, "Name:") {
			p.Name = strings.TrimSpace(strings.TrimPrefix(line, "Name:"))
			continue
		}

		// Skip headers and comments
		if line == "" || line[0] == '#' || strings.HasPrefix(line, "GIMP") || strings.HasPrefix(line, "Columns") {
			continue
		}

		// Parse RGB values (first 3 fields are R G B)
		fields := strings.Fields(line)
		if len(fields) >= 3 {
			r, err1 := strconv.Atoi(fields[0])
			g, err2 := strconv.Atoi(fields[1])
			b, err3 := strconv.Atoi(fields[2])
			if err1 == nil && err2 == nil && err3 == nil {
				p.Colors = append(p.Colors, RGB{uint8(r), uint8(g), uint8(b)})
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if len(p.Colors) == 0 {
		return nil, fmt.Errorf("no colors found in palette")
	}

	return p, nil
}

// Lookup returns the color for normalized value 0-1, blended in Lab space
func (p *Palette) Lookup(norm float64) RGB {
	if norm <= 0 {
		return p.Colors[0]
	}
	if norm >= 1 {
		return p.Colors[len(p.Colors)-1]
	}

	pos := norm * float64(len(p.Colors)-1)
	i := int(pos)
	frac := pos - float64(i)

	c := toColorful(p.Colors[i]).BlendLab(toColorful(p.Colors[i+1]), frac).Clamped()
	r, g, b := c.RGB255()
	return RGB{r, g, b}
}

func toColorful(c RGB) colorful.Color {
	return colorful.Color{R: float64(c[0]) / 255, G: float64(c[1]) / 255, B: float64(c[2]) / 255}
}

// Index returns color at specific index (no interpolation)
func (p *Palette) Index(i int) RGB {
	if i < 0 {
		return p.Colors[0]
	}
	if i >= len(p.Colors) {
		return p.Colors[len(p.Colors)-1]
	}
	return p.Colors[i]
}

package vterm

import "fmt"

// Palette maps the default and 16 ANSI colors to #rrggbb strings.
type Palette struct {
	Name       string
	Foreground string
	Background string
	ANSI       [16]string
}

// Theme names accepted by PaletteFor.
const (
	ThemeDark  = "dark"
	ThemeLight = "light"
)

// DarkPalette is the default palette.
func DarkPalette() Palette {
	return Palette{
		Name:       ThemeDark,
		Foreground: "#e5e5e5",
		Background: "#0a0a0a",
		ANSI: [16]string{
			"#000000", "#cd3131", "#0dbc79", "#e5e510",
			"#2472c8", "#bc3fbc", "#11a8cd", "#e5e5e5",
			"#666666", "#f14c4c", "#23d18b", "#f5f543",
			"#3b8eea", "#d670d6", "#29b8db", "#ffffff",
		},
	}
}

// LightPalette is used when the resolved theme is light.
func LightPalette() Palette {
	return Palette{
		Name:       ThemeLight,
		Foreground: "#1f1f1f",
		Background: "#fafafa",
		ANSI: [16]string{
			"#000000", "#cd3131", "#00bc00", "#949800",
			"#0451a5", "#bc05bc", "#0598bc", "#555555",
			"#666666", "#cd3131", "#14ce14", "#b5ba00",
			"#0451a5", "#bc05bc", "#0598bc", "#a5a5a5",
		},
	}
}

// PaletteFor returns the palette for a resolved theme name ("dark" or
// "light"). Anything else gets the dark palette.
func PaletteFor(theme string) Palette {
	if theme == ThemeLight {
		return LightPalette()
	}
	return DarkPalette()
}

var cubeLevels = [6]int{0, 95, 135, 175, 215, 255}

// Indexed resolves an xterm 256-color index. 0-15 come from the palette,
// 16-231 from the 6x6x6 cube and 232-255 from the grayscale ramp.
func (p Palette) Indexed(n int) string {
	switch {
	case n < 0 || n > 255:
		return p.Foreground
	case n < 16:
		return p.ANSI[n]
	case n < 232:
		n -= 16
		return RGB(cubeLevels[n/36], cubeLevels[(n/6)%6], cubeLevels[n%6])
	default:
		v := 8 + (n-232)*10
		return RGB(v, v, v)
	}
}

// RGB formats a color as #rrggbb, clamping each component to 0-255.
func RGB(r, g, b int) string {
	return fmt.Sprintf("#%02x%02x%02x", clampByte(r), clampByte(g), clampByte(b))
}

func clampByte(v int) int {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return v
}

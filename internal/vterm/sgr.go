package vterm

// sgr applies a Select Graphic Rendition sequence to the grid's pen. Each
// parameter updates the style independently; unknown codes are ignored.
func (p *Interpreter) sgr() {
	g := p.grid
	if len(p.params) == 0 {
		g.ResetStyle()
		return
	}

	style := g.Style()
	pal := g.Palette()
	def := Style{Fg: pal.Foreground, Bg: pal.Background}

	for i := 0; i < len(p.params); i++ {
		code := p.params[i]
		switch {
		case code <= 0:
			style = def
		case code == 1:
			style.Bold = true
		case code == 3:
			style.Italic = true
		case code == 22:
			style.Bold = false
		case code == 23:
			style.Italic = false
		case code >= 30 && code <= 37:
			style.Fg = pal.ANSI[code-30]
		case code == 39:
			style.Fg = pal.Foreground
		case code >= 40 && code <= 47:
			style.Bg = pal.ANSI[code-40]
		case code == 49:
			style.Bg = pal.Background
		case code >= 90 && code <= 97:
			style.Fg = pal.ANSI[code-90+8]
		case code >= 100 && code <= 107:
			style.Bg = pal.ANSI[code-100+8]
		case code == 38 || code == 48:
			color, used, ok := p.extendedColor(i+1, pal)
			i += used
			if !ok {
				// Malformed extended color; the rest of the sequence is
				// unreliable.
				i = len(p.params)
				break
			}
			if code == 38 {
				style.Fg = color
			} else {
				style.Bg = color
			}
		}
	}
	g.SetStyle(style)
}

// extendedColor decodes the sub-parameters following 38 or 48: "5;n" for the
// 256-color table or "2;r;g;b" for truecolor. It returns the number of
// parameters consumed.
func (p *Interpreter) extendedColor(start int, pal Palette) (string, int, bool) {
	arg := func(i int) (int, bool) {
		if start+i >= len(p.params) {
			return 0, false
		}
		v := p.params[start+i]
		if v < 0 {
			v = 0
		}
		return v, true
	}

	mode, ok := arg(0)
	if !ok {
		return "", 0, false
	}
	switch mode {
	case 5:
		n, ok := arg(1)
		if !ok || n > 255 {
			return "", 2, false
		}
		return pal.Indexed(n), 2, true
	case 2:
		r, okR := arg(1)
		g, okG := arg(2)
		b, okB := arg(3)
		if !okR || !okG || !okB {
			return "", 4, false
		}
		return RGB(r, g, b), 4, true
	default:
		return "", 1, false
	}
}

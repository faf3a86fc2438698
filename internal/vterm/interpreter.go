package vterm

import (
	"unicode/utf8"

	"github.com/mattn/go-runewidth"
)

type parserState int

const (
	stateGround parserState = iota
	stateEscape
	stateEscapeInter
	stateCSI
	stateOSC
	stateOSCEscape
	stateString       // DCS, SOS, PM, APC bodies
	stateStringEscape // ESC seen inside a string body
)

const (
	maxParams     = 32
	maxParamValue = 65535
)

// widths ignores the locale's East Asian setting so a grid renders the same
// regardless of the environment it runs in.
var widths = func() *runewidth.Condition {
	c := runewidth.NewCondition()
	c.EastAsianWidth = false
	return c
}()

// Interpreter is a resumable escape-sequence state machine. Bytes may be fed
// in arbitrary chunks; a sequence or UTF-8 rune split across calls resumes
// where it stopped.
type Interpreter struct {
	grid *Grid

	state parserState

	params     []int
	paramSet   bool // current parameter has at least one digit
	paramsFull bool // maxParams reached; later parameters are dropped
	private    bool // CSI opened with one of < = > ?
	intermOver bool // CSI carried intermediate bytes

	utf8Buf  [utf8.UTFMax]byte
	utf8Need int
	utf8Have int

	onDiscard func(kind string)
}

// NewInterpreter creates an interpreter that mutates grid.
func NewInterpreter(grid *Grid) *Interpreter {
	return &Interpreter{
		grid:   grid,
		params: make([]int, 0, 16),
	}
}

// SetDiscardCallback registers fn to be called with the sequence kind
// ("csi", "osc", "dcs", "esc") each time a sequence is consumed without
// effect.
func (p *Interpreter) SetDiscardCallback(fn func(kind string)) {
	p.onDiscard = fn
}

// Feed interprets data.
func (p *Interpreter) Feed(data []byte) {
	for _, b := range data {
		p.step(b)
	}
}

func (p *Interpreter) step(b byte) {
	switch p.state {
	case stateGround:
		p.ground(b)
	case stateEscape:
		p.escape(b)
	case stateEscapeInter:
		p.escapeInter(b)
	case stateCSI:
		p.csi(b)
	case stateOSC:
		p.osc(b)
	case stateOSCEscape:
		p.oscEscape(b)
	case stateString:
		p.stringBody(b)
	case stateStringEscape:
		p.stringEscape(b)
	}
}

func (p *Interpreter) discard(kind string) {
	if p.onDiscard != nil {
		p.onDiscard(kind)
	}
}

// anywhere handles the bytes that act the same in every state. It reports
// whether b was consumed.
func (p *Interpreter) anywhere(b byte) bool {
	switch b {
	case 0x18, 0x1A: // CAN, SUB
		if p.state != stateGround {
			p.discard("aborted")
		}
		p.resetUTF8()
		p.state = stateGround
		return true
	case 0x1B:
		p.flushUTF8()
		p.beginEscape()
		return true
	}
	return false
}

func (p *Interpreter) beginEscape() {
	p.state = stateEscape
	p.params = p.params[:0]
	p.paramSet = false
	p.paramsFull = false
	p.private = false
	p.intermOver = false
}

func (p *Interpreter) ground(b byte) {
	if p.utf8Need > 0 {
		if b&0xC0 == 0x80 {
			p.utf8Buf[p.utf8Have] = b
			p.utf8Have++
			if p.utf8Have == p.utf8Need {
				r, _ := utf8.DecodeRune(p.utf8Buf[:p.utf8Have])
				p.resetUTF8()
				p.print(r)
			}
			return
		}
		// Truncated sequence; the byte that interrupted it is processed normally.
		p.flushUTF8()
	}

	if p.anywhere(b) {
		return
	}
	switch {
	case b < 0x20:
		p.execute(b)
	case b < 0x7F:
		p.grid.Put(rune(b), 1)
	case b == 0x7F:
		// DEL
	default:
		need := utf8Len(b)
		if need == 0 {
			p.print(utf8.RuneError)
			return
		}
		p.utf8Buf[0] = b
		p.utf8Have = 1
		p.utf8Need = need
	}
}

func utf8Len(lead byte) int {
	switch {
	case lead >= 0xC2 && lead <= 0xDF:
		return 2
	case lead >= 0xE0 && lead <= 0xEF:
		return 3
	case lead >= 0xF0 && lead <= 0xF4:
		return 4
	default:
		return 0
	}
}

func (p *Interpreter) resetUTF8() {
	p.utf8Need = 0
	p.utf8Have = 0
}

// flushUTF8 emits U+FFFD for an incomplete pending sequence.
func (p *Interpreter) flushUTF8() {
	if p.utf8Need > 0 {
		p.resetUTF8()
		p.print(utf8.RuneError)
	}
}

func (p *Interpreter) print(r rune) {
	w := widths.RuneWidth(r)
	if w == 0 {
		return
	}
	p.grid.Put(r, w)
}

// execute runs a C0 control.
func (p *Interpreter) execute(b byte) {
	switch b {
	case '\r':
		p.grid.CarriageReturn()
	case '\n', 0x0B, 0x0C:
		p.grid.LineFeed()
	case 0x08:
		p.grid.Backspace()
	case '\t':
		p.grid.Tab()
	}
	// NUL, BEL and the remaining C0 codes have no effect.
}

func (p *Interpreter) escape(b byte) {
	if p.anywhere(b) {
		return
	}
	switch {
	case b < 0x20:
		p.execute(b)
	case b == '[':
		p.state = stateCSI
	case b == ']':
		p.state = stateOSC
	case b == 'P', b == 'X', b == '^', b == '_':
		p.state = stateString
	case b >= 0x20 && b <= 0x2F:
		p.state = stateEscapeInter
	default:
		p.discard("esc")
		p.state = stateGround
	}
}

func (p *Interpreter) escapeInter(b byte) {
	if p.anywhere(b) {
		return
	}
	switch {
	case b < 0x20:
		p.execute(b)
	case b <= 0x2F:
	default:
		p.discard("esc")
		p.state = stateGround
	}
}

func (p *Interpreter) csi(b byte) {
	if p.anywhere(b) {
		return
	}
	switch {
	case b < 0x20:
		p.execute(b)
	case b >= '0' && b <= '9':
		if p.paramsFull {
			return
		}
		if len(p.params) == 0 {
			p.params = append(p.params, 0)
		}
		i := len(p.params) - 1
		if v := p.params[i]*10 + int(b-'0'); v <= maxParamValue {
			p.params[i] = v
		} else {
			p.params[i] = maxParamValue
		}
		p.paramSet = true
	case b == ';' || b == ':':
		if p.paramsFull {
			return
		}
		if len(p.params) == 0 {
			p.params = append(p.params, -1)
		} else if !p.paramSet {
			p.params[len(p.params)-1] = -1
		}
		if len(p.params) < maxParams {
			p.params = append(p.params, 0)
		} else {
			p.paramsFull = true
		}
		p.paramSet = false
	case b >= 0x3C && b <= 0x3F:
		p.private = true
	case b >= 0x20 && b <= 0x2F:
		p.intermOver = true
	case b >= 0x40 && b <= 0x7E:
		if len(p.params) > 0 && !p.paramSet && !p.paramsFull {
			p.params[len(p.params)-1] = -1
		}
		p.state = stateGround
		if p.private || p.intermOver {
			p.discard("csi")
			return
		}
		p.dispatchCSI(b)
	default:
		// DEL inside CSI is ignored.
	}
}

// param returns parameter i, or def when it is absent or zero.
func (p *Interpreter) param(i, def int) int {
	if i >= len(p.params) || p.params[i] <= 0 {
		return def
	}
	return p.params[i]
}

func (p *Interpreter) dispatchCSI(final byte) {
	g := p.grid
	switch final {
	case 'J':
		if n := p.param(0, 0); n == 2 || n == 3 {
			g.Clear()
		}
	case 'H', 'f':
		g.MoveTo(p.param(1, 1)-1, p.param(0, 1)-1)
	case 'A':
		g.MoveBy(0, -p.param(0, 1))
	case 'B':
		g.MoveBy(0, p.param(0, 1))
	case 'C':
		g.MoveBy(p.param(0, 1), 0)
	case 'D':
		g.MoveBy(-p.param(0, 1), 0)
	case 'm':
		p.sgr()
	default:
		p.discard("csi")
	}
}

func (p *Interpreter) osc(b byte) {
	switch b {
	case 0x07:
		p.state = stateGround
		p.discard("osc")
	case 0x1B:
		p.state = stateOSCEscape
	case 0x18, 0x1A:
		p.anywhere(b)
	}
}

func (p *Interpreter) oscEscape(b byte) {
	if b == '\\' {
		p.state = stateGround
		p.discard("osc")
		return
	}
	// ESC not followed by '\' terminates the OSC and starts a new sequence.
	p.discard("osc")
	p.beginEscape()
	p.escape(b)
}

func (p *Interpreter) stringBody(b byte) {
	switch b {
	case 0x1B:
		p.state = stateStringEscape
	case 0x18, 0x1A:
		p.anywhere(b)
	}
}

func (p *Interpreter) stringEscape(b byte) {
	if b == '\\' {
		p.state = stateGround
		p.discard("dcs")
		return
	}
	p.discard("dcs")
	p.beginEscape()
	p.escape(b)
}

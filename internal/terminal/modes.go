package terminal

import "bytes"

// InputModes are the private modes that change how input must be encoded.
type InputModes struct {
	// BracketedPaste is DECSET 2004: pastes are wrapped in ESC[200~/ESC[201~.
	BracketedPaste bool
	// AppCursor is DECCKM: arrow keys send SS3 sequences.
	AppCursor bool
}

// modeTracker watches the output stream for DECSET/DECRST of the modes in
// InputModes. Its state survives across Feed calls, so a sequence split
// between reads is still seen.
type modeTracker struct {
	state  uint8
	params []byte
	modes  InputModes
}

const (
	mtGround uint8 = iota
	mtEscape
	mtCSI
	mtPrivate
)

const maxModeParams = 32

func (m *modeTracker) feed(b []byte) {
	for _, c := range b {
		if c == 0x1b {
			m.state = mtEscape
			continue
		}
		switch m.state {
		case mtEscape:
			switch c {
			case '[':
				m.state = mtCSI
			case 'c':
				// RIS
				m.modes = InputModes{}
				m.state = mtGround
			default:
				m.state = mtGround
			}
		case mtCSI:
			if c == '?' {
				m.params = m.params[:0]
				m.state = mtPrivate
			} else {
				m.state = mtGround
			}
		case mtPrivate:
			switch {
			case c >= '0' && c <= '9', c == ';':
				if len(m.params) < maxModeParams {
					m.params = append(m.params, c)
				}
			case c == 'h', c == 'l':
				m.apply(c == 'h')
				m.state = mtGround
			default:
				m.state = mtGround
			}
		}
	}
}

func (m *modeTracker) apply(set bool) {
	for _, p := range bytes.Split(m.params, []byte{';'}) {
		switch string(p) {
		case "1":
			m.modes.AppCursor = set
		case "2004":
			m.modes.BracketedPaste = set
		}
	}
}

// InputModes reports the input-affecting modes the child has set.
func (g *Grid) InputModes() InputModes {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.modes.modes
}

package main

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/manav03panchal/humanssh/internal/terminal"
)

type keyMap struct {
	SplitHorizontal key.Binding
	SplitVertical   key.Binding
	ClosePane       key.Binding
	FocusNext       key.Binding
	FocusPrevious   key.Binding
	NewTab          key.Binding
	NextTab         key.Binding
	PreviousTab     key.Binding
	Record          key.Binding
	Copy            key.Binding
	Paste           key.Binding
	SelectAll       key.Binding
	Quit            key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		SplitHorizontal: key.NewBinding(key.WithKeys("alt+d"), key.WithHelp("alt+d", "split right")),
		SplitVertical:   key.NewBinding(key.WithKeys("alt+D"), key.WithHelp("alt+D", "split down")),
		ClosePane:       key.NewBinding(key.WithKeys("alt+w"), key.WithHelp("alt+w", "close pane")),
		FocusNext:       key.NewBinding(key.WithKeys("alt+]"), key.WithHelp("alt+]", "next pane")),
		FocusPrevious:   key.NewBinding(key.WithKeys("alt+["), key.WithHelp("alt+[", "previous pane")),
		NewTab:          key.NewBinding(key.WithKeys("alt+t"), key.WithHelp("alt+t", "new tab")),
		NextTab:         key.NewBinding(key.WithKeys("alt+}"), key.WithHelp("alt+}", "next tab")),
		PreviousTab:     key.NewBinding(key.WithKeys("alt+{"), key.WithHelp("alt+{", "previous tab")),
		Record:          key.NewBinding(key.WithKeys("alt+r"), key.WithHelp("alt+r", "toggle recording")),
		Copy:            key.NewBinding(key.WithKeys("alt+c"), key.WithHelp("alt+c", "copy selection")),
		Paste:           key.NewBinding(key.WithKeys("alt+v"), key.WithHelp("alt+v", "paste")),
		SelectAll:       key.NewBinding(key.WithKeys("alt+a"), key.WithHelp("alt+a", "select all")),
		Quit:            key.NewBinding(key.WithKeys("ctrl+q"), key.WithHelp("ctrl+q", "quit")),
	}
}

// Escape sequences for non-printing keys, as xterm sends them in normal
// cursor mode.
var keySequences = map[tea.KeyType]string{
	tea.KeyUp:         "\x1b[A",
	tea.KeyDown:       "\x1b[B",
	tea.KeyRight:      "\x1b[C",
	tea.KeyLeft:       "\x1b[D",
	tea.KeyShiftUp:    "\x1b[1;2A",
	tea.KeyShiftDown:  "\x1b[1;2B",
	tea.KeyShiftRight: "\x1b[1;2C",
	tea.KeyShiftLeft:  "\x1b[1;2D",
	tea.KeyCtrlUp:     "\x1b[1;5A",
	tea.KeyCtrlDown:   "\x1b[1;5B",
	tea.KeyCtrlRight:  "\x1b[1;5C",
	tea.KeyCtrlLeft:   "\x1b[1;5D",
	tea.KeyHome:       "\x1b[H",
	tea.KeyEnd:        "\x1b[F",
	tea.KeyPgUp:       "\x1b[5~",
	tea.KeyPgDown:     "\x1b[6~",
	tea.KeyInsert:     "\x1b[2~",
	tea.KeyDelete:     "\x1b[3~",
	tea.KeyShiftTab:   "\x1b[Z",
	tea.KeyF1:         "\x1bOP",
	tea.KeyF2:         "\x1bOQ",
	tea.KeyF3:         "\x1bOR",
	tea.KeyF4:         "\x1bOS",
	tea.KeyF5:         "\x1b[15~",
	tea.KeyF6:         "\x1b[17~",
	tea.KeyF7:         "\x1b[18~",
	tea.KeyF8:         "\x1b[19~",
	tea.KeyF9:         "\x1b[20~",
	tea.KeyF10:        "\x1b[21~",
	tea.KeyF11:        "\x1b[23~",
	tea.KeyF12:        "\x1b[24~",
}

// Cursor keys in application cursor mode (DECCKM).
var appCursorSequences = map[tea.KeyType]string{
	tea.KeyUp:    "\x1bOA",
	tea.KeyDown:  "\x1bOB",
	tea.KeyRight: "\x1bOC",
	tea.KeyLeft:  "\x1bOD",
	tea.KeyHome:  "\x1bOH",
	tea.KeyEnd:   "\x1bOF",
}

// encodeKey turns a key press into the bytes a terminal would send to the
// shell. Alt prefixes ESC. Unknown keys encode to nil.
func encodeKey(k tea.KeyMsg, modes terminal.InputModes) []byte {
	var out []byte
	switch {
	case k.Type == tea.KeyRunes:
		out = []byte(string(k.Runes))
	case k.Type == tea.KeySpace:
		out = []byte{' '}
	case k.Type >= 0 && k.Type <= 127:
		// Control characters, Enter, Tab, Esc and Backspace carry their
		// byte value as the key type.
		out = []byte{byte(k.Type)}
	default:
		seq, ok := "", false
		if modes.AppCursor {
			seq, ok = appCursorSequences[k.Type]
		}
		if !ok {
			seq, ok = keySequences[k.Type]
		}
		if !ok {
			return nil
		}
		out = []byte(seq)
	}
	if k.Alt {
		out = append([]byte{0x1b}, out...)
	}
	return out
}

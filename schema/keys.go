package schema

// KeyCode identifies a non-character key. KeyNone means the event carries a
// character in KeyEvent.Char.
type KeyCode int

const (
	KeyNone KeyCode = iota
	KeyEnter
	KeyTab
	KeyBackspace
	KeyDelete
	KeyLeft
	KeyRight
	KeyUp
	KeyDown
	KeyHome
	KeyEnd
	KeyPageUp
	KeyPageDown
	KeyEscape
)

// Modifier is a bit set of held modifier keys.
type Modifier uint8

const (
	ModCtrl Modifier = 1 << iota
	ModAlt
	ModShift
)

// Has reports whether all bits in m2 are set.
func (m Modifier) Has(m2 Modifier) bool {
	return m&m2 == m2
}

// KeyEvent is a raw keystroke from a display surface: a character, the
// modifier flags and a key code.
type KeyEvent struct {
	Char rune
	Mods Modifier
	Code KeyCode
}

// CharKey returns a plain character key event.
func CharKey(r rune) KeyEvent {
	return KeyEvent{Char: r}
}

// CodeKey returns a key event for a non-character key.
func CodeKey(code KeyCode) KeyEvent {
	return KeyEvent{Code: code}
}

// CtrlKey returns a Ctrl+<letter> key event. The letter is stored lower case.
func CtrlKey(r rune) KeyEvent {
	if r >= 'A' && r <= 'Z' {
		r += 'a' - 'A'
	}
	return KeyEvent{Char: r, Mods: ModCtrl}
}

// AltKey returns an Alt+<char> key event.
func AltKey(r rune) KeyEvent {
	return KeyEvent{Char: r, Mods: ModAlt}
}

// IsCtrl reports whether the event is Ctrl+r.
func (k KeyEvent) IsCtrl(r rune) bool {
	return k.Code == KeyNone && k.Mods.Has(ModCtrl) && k.Char == r
}

// IsAlt reports whether the event is Alt+r.
func (k KeyEvent) IsAlt(r rune) bool {
	return k.Code == KeyNone && k.Mods.Has(ModAlt) && k.Char == r
}

// Printable reports whether the event inserts its character as text.
func (k KeyEvent) Printable() bool {
	if k.Code != KeyNone || k.Char == 0 {
		return false
	}
	if k.Mods.Has(ModCtrl) || k.Mods.Has(ModAlt) {
		return false
	}
	return k.Char >= 0x20 && k.Char != 0x7f
}

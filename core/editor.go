package core

// lineEditor is the editable input region shown while no process is live.
// Lengths and the cursor are counted in runes; 0 <= cursor <= len(buf).
type lineEditor struct {
	buf    []rune
	cursor int
}

func (e *lineEditor) String() string {
	return string(e.buf)
}

func (e *lineEditor) Len() int {
	return len(e.buf)
}

func (e *lineEditor) Cursor() int {
	return e.cursor
}

func (e *lineEditor) Clear() {
	e.buf = nil
	e.cursor = 0
}

// SetContent replaces the buffer and moves the cursor to the end.
func (e *lineEditor) SetContent(value string) {
	if value == "" {
		e.Clear()
		return
	}
	e.buf = []rune(value)
	e.cursor = len(e.buf)
}

// TakeAndClear returns the buffer content and empties the editor.
func (e *lineEditor) TakeAndClear() string {
	value := string(e.buf)
	e.Clear()
	return value
}

// Insert splices text at the cursor and advances the cursor past it.
func (e *lineEditor) Insert(text string) {
	if text == "" {
		return
	}
	e.clampCursor()
	runes := []rune(text)
	next := make([]rune, 0, len(e.buf)+len(runes))
	next = append(next, e.buf[:e.cursor]...)
	next = append(next, runes...)
	next = append(next, e.buf[e.cursor:]...)
	e.buf = next
	e.cursor += len(runes)
}

func (e *lineEditor) InsertRune(r rune) {
	e.Insert(string(r))
}

func (e *lineEditor) Backspace() {
	if e.cursor <= 0 {
		return
	}
	e.buf = append(e.buf[:e.cursor-1], e.buf[e.cursor:]...)
	e.cursor--
}

func (e *lineEditor) Delete() {
	if e.cursor < 0 || e.cursor >= len(e.buf) {
		return
	}
	e.buf = append(e.buf[:e.cursor], e.buf[e.cursor+1:]...)
}

func (e *lineEditor) MoveLeft() {
	if e.cursor > 0 {
		e.cursor--
	}
}

func (e *lineEditor) MoveRight() {
	if e.cursor < len(e.buf) {
		e.cursor++
	}
}

func (e *lineEditor) MoveStart() {
	e.cursor = 0
}

func (e *lineEditor) MoveEnd() {
	e.cursor = len(e.buf)
}

func (e *lineEditor) MoveWordLeft() {
	if e.cursor <= 0 {
		return
	}
	i := e.cursor
	for i > 0 && isSpace(e.buf[i-1]) {
		i--
	}
	for i > 0 && !isSpace(e.buf[i-1]) {
		i--
	}
	e.cursor = i
}

func (e *lineEditor) MoveWordRight() {
	if e.cursor >= len(e.buf) {
		return
	}
	i := e.cursor
	for i < len(e.buf) && isSpace(e.buf[i]) {
		i++
	}
	for i < len(e.buf) && !isSpace(e.buf[i]) {
		i++
	}
	e.cursor = i
}

func (e *lineEditor) DeleteWordBackward() {
	if e.cursor <= 0 {
		return
	}
	start := e.cursor
	for start > 0 && isSpace(e.buf[start-1]) {
		start--
	}
	for start > 0 && !isSpace(e.buf[start-1]) {
		start--
	}
	e.buf = append(e.buf[:start], e.buf[e.cursor:]...)
	e.cursor = start
}

// KillLineStart deletes everything left of the cursor.
func (e *lineEditor) KillLineStart() {
	if e.cursor <= 0 {
		return
	}
	e.buf = append([]rune(nil), e.buf[e.cursor:]...)
	e.cursor = 0
}

// KillLineEnd deletes everything from the cursor to the end.
func (e *lineEditor) KillLineEnd() {
	if e.cursor >= len(e.buf) {
		return
	}
	e.buf = e.buf[:e.cursor]
}

func (e *lineEditor) clampCursor() {
	if e.cursor < 0 {
		e.cursor = 0
	}
	if e.cursor > len(e.buf) {
		e.cursor = len(e.buf)
	}
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t'
}

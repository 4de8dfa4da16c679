package tui

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/mattn/go-runewidth"

	"pkt.systems/shellpane/schema"
)

const (
	ansiReset = "\x1b[0m"
	ansiDim   = "\x1b[2m"
)

type rgb struct {
	r int
	g int
	b int
}

func ansiFgRGB(c rgb) string {
	return "\x1b[38;2;" + strconv.Itoa(c.r) + ";" + strconv.Itoa(c.g) + ";" + strconv.Itoa(c.b) + "m"
}

// theme maps chunk kinds to SGR prefixes. An empty prefix renders plain.
type theme struct {
	stderr    string
	status    string
	interrupt string
}

func defaultTheme() theme {
	return theme{
		stderr:    ansiFgRGB(rgb{r: 255, g: 107, b: 107}),
		status:    ansiFgRGB(rgb{r: 250, g: 189, b: 47}),
		interrupt: ansiDim,
	}
}

func (t theme) style(kind schema.ChunkKind) string {
	switch kind {
	case schema.ChunkStderr:
		return t.stderr
	case schema.ChunkStatus:
		return t.status
	case schema.ChunkInterrupt:
		return t.interrupt
	default:
		return ""
	}
}

// view is what one redraw needs from the session.
type view struct {
	chunks   []schema.Chunk
	atBottom bool
	state    schema.State
	prompt   string
	input    schema.InputSnapshot
}

// frame is a full screen of rendered lines plus a 1-based cursor.
type frame struct {
	lines      []string
	cursorRow  int
	cursorCol  int
	hideCursor bool
}

type textLine struct {
	text string
	kind schema.ChunkKind
}

// chunkLines flattens chunks into display lines. Line-start kinds begin a
// fresh line; stream chunks continue the current one. A prompt directly
// followed by an echo is superseded by the echo. open reports whether the
// last line is still waiting for its newline.
func chunkLines(chunks []schema.Chunk) (lines []textLine, open bool) {
	var cur strings.Builder
	var curKind schema.ChunkKind
	flush := func() {
		lines = append(lines, textLine{text: sanitizeText(cur.String()), kind: curKind})
		cur.Reset()
		open = false
	}
	for i, chunk := range chunks {
		if chunk.Kind == schema.ChunkPrompt && i+1 < len(chunks) && chunks[i+1].Kind == schema.ChunkEcho {
			continue
		}
		if chunk.LineStart() {
			if open {
				flush()
			}
			for _, part := range strings.Split(chunk.Text, "\n") {
				lines = append(lines, textLine{text: sanitizeText(part), kind: chunk.Kind})
			}
			continue
		}
		parts := strings.Split(chunk.Text, "\n")
		for j, part := range parts {
			last := j == len(parts)-1
			if last && part == "" {
				break
			}
			if !open {
				curKind = chunk.Kind
				open = true
			}
			cur.WriteString(part)
			if !last {
				flush()
			}
		}
	}
	if open {
		lines = append(lines, textLine{text: sanitizeText(cur.String()), kind: curKind})
	}
	return lines, open
}

func renderBody(lines []textLine, width int, th theme) []string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		style := th.style(line.kind)
		for _, wrapped := range wrapLine(line.text, width) {
			if style != "" && wrapped != "" {
				wrapped = style + wrapped + ansiReset
			}
			out = append(out, wrapped)
		}
	}
	return out
}

// composeFrame lays out the scrollback and, while editing, the prompt with
// the input line beneath it.
func composeFrame(v view, width, height int, th theme) frame {
	if width <= 0 {
		width = 80
	}
	if height <= 0 {
		height = 24
	}
	chunks := v.chunks
	editing := v.state != schema.StateRunning
	if editing && v.atBottom && len(chunks) > 0 && chunks[len(chunks)-1].Kind == schema.ChunkPrompt {
		chunks = chunks[:len(chunks)-1]
	}
	textLines, open := chunkLines(chunks)
	body := renderBody(textLines, width, th)

	if editing {
		inputLines, cursorRow, cursorCol := renderInputLines(v.prompt, v.input.Text, v.input.Cursor, width)
		if len(inputLines) > height {
			drop := len(inputLines) - height
			inputLines = inputLines[drop:]
			cursorRow -= drop
		}
		viewport := fitViewport(body, height-len(inputLines), v.atBottom)
		lines := append(viewport, inputLines...)
		return frame{lines: lines, cursorRow: len(viewport) + cursorRow, cursorCol: cursorCol}
	}

	if !v.atBottom {
		return frame{lines: fitViewport(body, height, false), cursorRow: 1, cursorCol: 1, hideCursor: true}
	}
	if open {
		viewport := fitViewport(body, height, true)
		col := 1
		if len(viewport) > 0 {
			col = runewidth.StringWidth(stripANSI(viewport[len(viewport)-1])) + 1
		}
		if col > width {
			col = width
		}
		return frame{lines: viewport, cursorRow: len(viewport), cursorCol: col}
	}
	viewport := fitViewport(body, height-1, true)
	return frame{lines: viewport, cursorRow: len(viewport) + 1, cursorCol: 1}
}

func fitViewport(lines []string, height int, atBottom bool) []string {
	if height <= 0 {
		return nil
	}
	if len(lines) <= height {
		return append([]string(nil), lines...)
	}
	if atBottom {
		return append([]string(nil), lines[len(lines)-height:]...)
	}
	return append([]string(nil), lines[:height]...)
}

// renderInputLines wraps prompt+input to width and returns the 1-based
// cursor position relative to the first returned line.
func renderInputLines(prompt, input string, cursor, width int) ([]string, int, int) {
	runes := []rune(input)
	if cursor < 0 {
		cursor = 0
	}
	if cursor > len(runes) {
		cursor = len(runes)
	}
	if width <= 0 {
		width = runewidth.StringWidth(prompt) + len(runes)*2 + 1
	}
	var lines []string
	promptLines := wrapLine(sanitizeText(prompt), width)
	lines = append(lines, promptLines[:len(promptLines)-1]...)
	var cur strings.Builder
	cur.WriteString(promptLines[len(promptLines)-1])
	col := runewidth.StringWidth(cur.String())

	cursorRow, cursorCol := 0, 0
	cursorSet := false
	for i, r := range runes {
		rw := runewidth.RuneWidth(r)
		if col+rw > width && col > 0 {
			lines = append(lines, cur.String())
			cur.Reset()
			col = 0
		}
		if i == cursor {
			cursorRow = len(lines) + 1
			cursorCol = col + 1
			cursorSet = true
		}
		cur.WriteRune(r)
		col += rw
	}
	if !cursorSet {
		if col >= width {
			lines = append(lines, cur.String())
			cur.Reset()
			col = 0
		}
		cursorRow = len(lines) + 1
		cursorCol = col + 1
	}
	lines = append(lines, cur.String())
	return lines, cursorRow, cursorCol
}

// wrapLine splits text into rows of at most width terminal cells.
func wrapLine(text string, width int) []string {
	if width <= 0 || text == "" {
		return []string{text}
	}
	var out []string
	var cur strings.Builder
	col := 0
	for _, r := range text {
		rw := runewidth.RuneWidth(r)
		if col+rw > width && col > 0 {
			out = append(out, cur.String())
			cur.Reset()
			col = 0
		}
		cur.WriteRune(r)
		col += rw
	}
	return append(out, cur.String())
}

// sanitizeText drops escape sequences and control characters from child
// output so it cannot move the cursor or restyle the screen. Tabs become
// four spaces.
func sanitizeText(text string) string {
	if text == "" {
		return ""
	}
	var b strings.Builder
	for i := 0; i < len(text); {
		ch := text[i]
		if ch == 0x1b {
			i = skipEscape(text, i+1)
			continue
		}
		r, size := utf8.DecodeRuneInString(text[i:])
		if r == '\t' {
			b.WriteString("    ")
			i += size
			continue
		}
		if r < 0x20 || r == 0x7f || (r >= 0x80 && r < 0xa0) {
			i += size
			continue
		}
		b.WriteRune(r)
		i += size
	}
	return b.String()
}

func stripANSI(text string) string {
	var b strings.Builder
	for i := 0; i < len(text); {
		if text[i] == 0x1b {
			i = skipEscape(text, i+1)
			continue
		}
		b.WriteByte(text[i])
		i++
	}
	return b.String()
}

func skipEscape(text string, i int) int {
	if i >= len(text) {
		return i
	}
	switch text[i] {
	case '[':
		return skipCSI(text, i+1)
	case ']':
		return skipOSC(text, i+1)
	default:
		return i + 1
	}
}

func skipCSI(text string, i int) int {
	for i < len(text) {
		b := text[i]
		if b >= 0x40 && b <= 0x7e {
			return i + 1
		}
		i++
	}
	return i
}

func skipOSC(text string, i int) int {
	for i < len(text) {
		switch text[i] {
		case 0x07:
			return i + 1
		case 0x1b:
			if i+1 < len(text) && text[i+1] == '\\' {
				return i + 2
			}
		}
		i++
	}
	return i
}

package tui

import (
	"bufio"
	"io"
	"unicode/utf8"

	"pkt.systems/shellpane/schema"
)

// ReadKeys decodes raw terminal input into key events until r fails. out is
// closed on return.
func ReadKeys(r io.Reader, out chan<- schema.KeyEvent) {
	defer close(out)
	br := bufio.NewReader(r)
	lastWasCR := false
	for {
		b, err := br.ReadByte()
		if err != nil {
			return
		}
		if lastWasCR {
			lastWasCR = false
			if b == '\n' {
				continue
			}
		}
		switch {
		case b == 0x1b:
			if !readEscape(br, out) {
				return
			}
		case b == '\r':
			out <- schema.CodeKey(schema.KeyEnter)
			lastWasCR = true
		case b == '\n':
			out <- schema.CodeKey(schema.KeyEnter)
		case b == 0x7f:
			out <- schema.CodeKey(schema.KeyBackspace)
		case b == '\t':
			out <- schema.CodeKey(schema.KeyTab)
		case b >= 0x01 && b <= 0x1a:
			out <- schema.CtrlKey(rune('a' + b - 1))
		case b < 0x20:
			// NUL and Ctrl+\ ] ^ _ have no binding.
		case b < utf8.RuneSelf:
			out <- schema.CharKey(rune(b))
		default:
			_ = br.UnreadByte()
			rn, _, err := br.ReadRune()
			if err != nil {
				return
			}
			out <- schema.CharKey(rn)
		}
	}
}

// readEscape decodes the bytes after ESC. It reports false when the reader
// failed.
func readEscape(br *bufio.Reader, out chan<- schema.KeyEvent) bool {
	b, err := br.ReadByte()
	if err != nil {
		out <- schema.CodeKey(schema.KeyEscape)
		return false
	}
	switch {
	case b == '[':
		return readCSI(br, out)
	case b == 'O':
		return readSS3(br, out)
	case b == 0x1b:
		out <- schema.CodeKey(schema.KeyEscape)
		_ = br.UnreadByte()
	case b == 0x7f:
		out <- schema.CtrlKey('w')
	case b >= 0x20 && b < utf8.RuneSelf:
		out <- schema.AltKey(rune(b))
	default:
		out <- schema.CodeKey(schema.KeyEscape)
		_ = br.UnreadByte()
	}
	return true
}

func readCSI(br *bufio.Reader, out chan<- schema.KeyEvent) bool {
	seq := []byte{}
	for {
		b, err := br.ReadByte()
		if err != nil {
			return false
		}
		seq = append(seq, b)
		if b >= 0x40 && b <= 0x7e {
			break
		}
		if len(seq) > 8 {
			return true
		}
	}
	switch string(seq) {
	case "A":
		out <- schema.CodeKey(schema.KeyUp)
	case "B":
		out <- schema.CodeKey(schema.KeyDown)
	case "C":
		out <- schema.CodeKey(schema.KeyRight)
	case "D":
		out <- schema.CodeKey(schema.KeyLeft)
	case "H", "1~", "7~":
		out <- schema.CodeKey(schema.KeyHome)
	case "F", "4~", "8~":
		out <- schema.CodeKey(schema.KeyEnd)
	case "3~":
		out <- schema.CodeKey(schema.KeyDelete)
	case "5~":
		out <- schema.CodeKey(schema.KeyPageUp)
	case "6~":
		out <- schema.CodeKey(schema.KeyPageDown)
	case "1;5D", "1;3D":
		out <- schema.AltKey('b')
	case "1;5C", "1;3C":
		out <- schema.AltKey('f')
	}
	return true
}

func readSS3(br *bufio.Reader, out chan<- schema.KeyEvent) bool {
	b, err := br.ReadByte()
	if err != nil {
		return false
	}
	switch b {
	case 'A':
		out <- schema.CodeKey(schema.KeyUp)
	case 'B':
		out <- schema.CodeKey(schema.KeyDown)
	case 'C':
		out <- schema.CodeKey(schema.KeyRight)
	case 'D':
		out <- schema.CodeKey(schema.KeyLeft)
	case 'H':
		out <- schema.CodeKey(schema.KeyHome)
	case 'F':
		out <- schema.CodeKey(schema.KeyEnd)
	}
	return true
}

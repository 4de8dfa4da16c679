package tui

import (
	"reflect"
	"strings"
	"testing"

	"pkt.systems/shellpane/schema"
)

func decode(t *testing.T, input string) []schema.KeyEvent {
	t.Helper()
	out := make(chan schema.KeyEvent, 64)
	ReadKeys(strings.NewReader(input), out)
	var keys []schema.KeyEvent
	for k := range out {
		keys = append(keys, k)
	}
	return keys
}

func TestReadKeysCharactersAndControls(t *testing.T) {
	got := decode(t, "aé\r\n\x7f\t\x03\x04\x01\x08")
	want := []schema.KeyEvent{
		schema.CharKey('a'),
		schema.CharKey('é'),
		schema.CodeKey(schema.KeyEnter),
		schema.CodeKey(schema.KeyBackspace),
		schema.CodeKey(schema.KeyTab),
		schema.CtrlKey('c'),
		schema.CtrlKey('d'),
		schema.CtrlKey('a'),
		schema.CtrlKey('h'),
	}
	if !reflect.DeepEqual(want, got) {
		t.Fatalf("want %+v\ngot  %+v", want, got)
	}
}

func TestReadKeysBareNewlineIsEnter(t *testing.T) {
	got := decode(t, "ls\n")
	if len(got) != 3 || got[2] != schema.CodeKey(schema.KeyEnter) {
		t.Fatalf("unexpected keys %+v", got)
	}
}

func TestReadKeysEscapeSequences(t *testing.T) {
	got := decode(t, "\x1b[A\x1b[B\x1b[C\x1b[D\x1b[H\x1b[F\x1b[3~\x1b[5~\x1b[6~\x1bOH\x1bOF\x1b[1;5D\x1bb\x1bf")
	want := []schema.KeyEvent{
		schema.CodeKey(schema.KeyUp),
		schema.CodeKey(schema.KeyDown),
		schema.CodeKey(schema.KeyRight),
		schema.CodeKey(schema.KeyLeft),
		schema.CodeKey(schema.KeyHome),
		schema.CodeKey(schema.KeyEnd),
		schema.CodeKey(schema.KeyDelete),
		schema.CodeKey(schema.KeyPageUp),
		schema.CodeKey(schema.KeyPageDown),
		schema.CodeKey(schema.KeyHome),
		schema.CodeKey(schema.KeyEnd),
		schema.AltKey('b'),
		schema.AltKey('b'),
		schema.AltKey('f'),
	}
	if !reflect.DeepEqual(want, got) {
		t.Fatalf("want %+v\ngot  %+v", want, got)
	}
}

func TestReadKeysLoneEscape(t *testing.T) {
	got := decode(t, "\x1b\x1b[A\x1b")
	want := []schema.KeyEvent{
		schema.CodeKey(schema.KeyEscape),
		schema.CodeKey(schema.KeyUp),
		schema.CodeKey(schema.KeyEscape),
	}
	if !reflect.DeepEqual(want, got) {
		t.Fatalf("want %+v\ngot  %+v", want, got)
	}
}

func TestReadKeysIgnoresUnknownCSI(t *testing.T) {
	got := decode(t, "\x1b[99~x")
	if len(got) != 1 || got[0] != schema.CharKey('x') {
		t.Fatalf("unexpected keys %+v", got)
	}
}

package core

import (
	"strings"

	"pkt.systems/shellpane/schema"
)

const defaultHistoryMax = schema.DefaultHistoryMax

// historyBuffer holds submitted commands oldest first, plus a navigation
// index counted from the newest entry. An index of -1 means not browsing.
type historyBuffer struct {
	entries []string
	max     int
	index   int
}

func newHistory(max int) *historyBuffer {
	if max <= 0 {
		max = defaultHistoryMax
	}
	return &historyBuffer{max: max, index: -1}
}

func newHistoryFromPersisted(entries []string, max int) *historyBuffer {
	h := newHistory(max)
	for _, entry := range entries {
		if strings.TrimSpace(entry) == "" {
			continue
		}
		h.entries = append(h.entries, entry)
	}
	if len(h.entries) > h.max {
		h.entries = append([]string(nil), h.entries[len(h.entries)-h.max:]...)
	}
	return h
}

// Append records a submitted command and stops browsing. Blank entries are
// not recorded. Repeated commands are recorded every time.
func (h *historyBuffer) Append(entry string) bool {
	if h == nil {
		return false
	}
	h.index = -1
	if strings.TrimSpace(entry) == "" {
		return false
	}
	h.entries = append(h.entries, entry)
	if len(h.entries) > h.max {
		h.entries = h.entries[len(h.entries)-h.max:]
	}
	return true
}

// Previous steps toward older entries. It returns false when history is
// empty or the oldest entry is already selected.
func (h *historyBuffer) Previous() (string, bool) {
	if h == nil || h.index >= len(h.entries)-1 {
		return "", false
	}
	h.index++
	return h.entries[len(h.entries)-1-h.index], true
}

// Next steps toward newer entries. Stepping past the newest entry stops
// browsing and returns an empty string with true. It returns false when not
// browsing.
func (h *historyBuffer) Next() (string, bool) {
	if h == nil || h.index < 0 {
		return "", false
	}
	if h.index == 0 {
		h.index = -1
		return "", true
	}
	h.index--
	return h.entries[len(h.entries)-1-h.index], true
}

// ResetNavigation stops browsing.
func (h *historyBuffer) ResetNavigation() {
	if h == nil {
		return
	}
	h.index = -1
}

// Index returns the navigation index (-1 when not browsing).
func (h *historyBuffer) Index() int {
	if h == nil {
		return -1
	}
	return h.index
}

func (h *historyBuffer) Len() int {
	if h == nil {
		return 0
	}
	return len(h.entries)
}

func (h *historyBuffer) Entries() []string {
	if h == nil {
		return nil
	}
	return append([]string(nil), h.entries...)
}

package core

import "pkt.systems/shellpane/schema"

// bufferView is a snapshot of a buffer's visible state.
type bufferView struct {
	Chunks       []schema.Chunk
	TotalChunks  int
	ScrollOffset int
	AtBottom     bool
}

// buffer is the append-only scrollback.
// ScrollOffset is the number of chunks from the bottom; 0 means at bottom.
type buffer struct {
	chunks       []schema.Chunk
	scrollOffset int
	// maxChunks <= 0 keeps everything.
	maxChunks int
}

func newBuffer(maxChunks int) *buffer {
	return &buffer{maxChunks: maxChunks}
}

// Append adds chunks to the buffer. If the buffer is scrolled up, the scroll
// offset is increased to keep the view anchored.
func (b *buffer) Append(chunks ...schema.Chunk) {
	if len(chunks) == 0 {
		return
	}
	b.chunks = append(b.chunks, chunks...)
	if b.scrollOffset > 0 {
		b.scrollOffset += len(chunks)
	}
	if b.maxChunks > 0 && len(b.chunks) > b.maxChunks {
		trim := len(b.chunks) - b.maxChunks
		b.chunks = append([]schema.Chunk(nil), b.chunks[trim:]...)
		if b.scrollOffset > len(b.chunks) {
			b.scrollOffset = len(b.chunks)
		}
	}
}

// Len returns the number of retained chunks.
func (b *buffer) Len() int {
	return len(b.chunks)
}

// ResetScroll returns the view to the bottom.
func (b *buffer) ResetScroll() {
	b.scrollOffset = 0
}

// Scroll adjusts the scroll offset by delta. Positive delta scrolls up (older
// chunks), negative delta scrolls down. Limit is the viewport size in chunks.
func (b *buffer) Scroll(delta, limit int) {
	b.scrollOffset = clampScroll(b.scrollOffset+delta, len(b.chunks), limit)
}

// Snapshot returns a view of the buffer for the given viewport limit.
// A limit <= 0 returns every chunk.
func (b *buffer) Snapshot(limit int) bufferView {
	total := len(b.chunks)
	if limit <= 0 || limit > total {
		limit = total
	}

	maxScroll := maxScroll(total, limit)
	if b.scrollOffset > maxScroll {
		b.scrollOffset = maxScroll
	}

	end := total - b.scrollOffset
	if end < 0 {
		end = 0
	}
	start := end - limit
	if start < 0 {
		start = 0
	}

	chunks := make([]schema.Chunk, end-start)
	copy(chunks, b.chunks[start:end])

	return bufferView{
		Chunks:       chunks,
		TotalChunks:  total,
		ScrollOffset: b.scrollOffset,
		AtBottom:     b.scrollOffset == 0,
	}
}

// Chunks returns a copy of every retained chunk.
func (b *buffer) Chunks() []schema.Chunk {
	return append([]schema.Chunk(nil), b.chunks...)
}

func maxScroll(total, limit int) int {
	if total <= 0 || limit <= 0 {
		return 0
	}
	if total <= limit {
		return 0
	}
	return total - limit
}

func clampScroll(offset, total, limit int) int {
	max := maxScroll(total, limit)
	if offset < 0 {
		return 0
	}
	if offset > max {
		return max
	}
	return offset
}

package childproc

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"pkt.systems/pslog"
	"pkt.systems/shellpane/schema"
)

// streams holds the parent's ends of the child's stdio. Output uses
// os.Pipe directly rather than cmd.StdoutPipe so cmd.Wait never waits on
// or closes the read ends, and reads can be cut off with a deadline.
type streams struct {
	stdin    io.WriteCloser
	stdout   *os.File
	stderr   *os.File
	childOut *os.File
	childErr *os.File
}

func openStreams(cmd *exec.Cmd) (*streams, error) {
	st := &streams{}
	var err error
	if st.stdin, err = cmd.StdinPipe(); err != nil {
		return nil, err
	}
	if st.stdout, st.childOut, err = os.Pipe(); err != nil {
		st.closeAll()
		return nil, err
	}
	if st.stderr, st.childErr, err = os.Pipe(); err != nil {
		st.closeAll()
		return nil, err
	}
	cmd.Stdout = st.childOut
	cmd.Stderr = st.childErr
	return st, nil
}

// closeChildEnds releases the write ends once the child holds its copies,
// so the readers see EOF when the last writer exits.
func (st *streams) closeChildEnds() {
	closeAll(fileCloser(st.childOut), fileCloser(st.childErr))
}

// expire unblocks pending reads.
func (st *streams) expire() {
	now := time.Now()
	for _, f := range []*os.File{st.stdout, st.stderr} {
		if f != nil {
			_ = f.SetReadDeadline(now)
		}
	}
}

func (st *streams) closeReaders() {
	closeAll(fileCloser(st.stdout), fileCloser(st.stderr))
}

func (st *streams) closeAll() {
	closeAll(st.stdin)
	st.closeChildEnds()
	st.closeReaders()
}

// fileCloser avoids storing a typed nil *os.File in an io.Closer.
func fileCloser(f *os.File) io.Closer {
	if f == nil {
		return nil
	}
	return f
}

func closeAll(closers ...io.Closer) {
	for _, closer := range closers {
		if closer == nil {
			continue
		}
		_ = closer.Close()
	}
}

// readStream decodes one output stream as UTF-8, replacing invalid bytes
// with U+FFFD, and delivers chunks in arrival order. A rune split across
// reads is held back until it is complete.
func (c *Controller) readStream(wg *sync.WaitGroup, p *process, r io.Reader, stream schema.Stream, log pslog.Logger) {
	defer wg.Done()
	reader := transform.NewReader(r, unicode.UTF8.NewDecoder())
	buf := make([]byte, c.cfg.ReadChunkSize)
	var pending []byte
	chunks := 0
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			complete, rest := splitIncomplete(pending)
			if len(complete) > 0 {
				chunks++
				c.deliver(p, stream, string(complete))
			}
			pending = append([]byte(nil), rest...)
		}
		if err != nil {
			if len(pending) > 0 {
				chunks++
				c.deliver(p, stream, string(pending))
			}
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) && !errors.Is(err, os.ErrDeadlineExceeded) {
				log.Debug("childproc stream read failed", "stream", stream, "err", err)
			}
			log.Trace("childproc stream closed", "stream", stream, "chunks", chunks)
			return
		}
	}
}

func (c *Controller) deliver(p *process, stream schema.Stream, text string) {
	if c.observer == nil {
		return
	}
	c.observer.OnProcessOutput(schema.ProcessOutput{Seq: p.info.Seq, Stream: stream, Text: text})
}

// writeInput drains queued stdin writes until the queue is closed. After a
// write error the remaining queue is discarded.
func (c *Controller) writeInput(p *process, stdin io.WriteCloser, log pslog.Logger) {
	broken := false
	for data := range p.input {
		if broken {
			continue
		}
		if _, err := stdin.Write(data); err != nil {
			log.Debug("childproc stdin write failed", "err", err)
			broken = true
		}
	}
	_ = stdin.Close()
}

// splitIncomplete separates a trailing partial UTF-8 sequence from b.
func splitIncomplete(b []byte) ([]byte, []byte) {
	limit := len(b) - utf8.UTFMax
	if limit < 0 {
		limit = 0
	}
	for i := len(b) - 1; i >= limit; i-- {
		if !utf8.RuneStart(b[i]) {
			continue
		}
		if utf8.FullRune(b[i:]) {
			return b, nil
		}
		return b[:i], b[i:]
	}
	return b, nil
}

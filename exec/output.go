package exec

import (
	"bytes"
	"io"
	"sync"
)

// multiWriter fans writes out to several writers. os/exec may write stdout
// and stderr from separate goroutines, so writes are serialized.
type multiWriter struct {
	writers []io.Writer
	mu      sync.Mutex
}

func newMultiWriter(writers ...io.Writer) *multiWriter {
	return &multiWriter{writers: writers}
}

func (mw *multiWriter) Write(p []byte) (int, error) {
	mw.mu.Lock()
	defer mw.mu.Unlock()

	for _, w := range mw.writers {
		n, err := w.Write(p)
		if err != nil {
			return n, err
		}
		if n != len(p) {
			return n, io.ErrShortWrite
		}
	}
	return len(p), nil
}

// outputCapture buffers one stream and optionally copies it to a passthrough writer.
type outputCapture struct {
	buffer      *syncBuffer
	passthrough io.Writer
}

func newOutputCapture(passthrough io.Writer) *outputCapture {
	return &outputCapture{
		buffer:      &syncBuffer{},
		passthrough: passthrough,
	}
}

func (oc *outputCapture) Writer() io.Writer {
	if oc.passthrough != nil {
		return newMultiWriter(oc.buffer, oc.passthrough)
	}
	return oc.buffer
}

func (oc *outputCapture) String() string {
	return oc.buffer.String()
}

// combinedWriter interleaves stdout and stderr.
type combinedWriter = syncBuffer

func newCombinedWriter() *combinedWriter {
	return &syncBuffer{}
}

type syncBuffer struct {
	buf bytes.Buffer
	mu  sync.Mutex
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

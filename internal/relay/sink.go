// pattern: Imperative Shell

package relay

import (
	"fmt"
	"io"
	"sync"
)

// WriterSink prints relay output to a writer, one line per append.
type WriterSink struct {
	mu  sync.Mutex
	w   io.Writer
	err error
}

func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

func (s *WriterSink) Begin() {}

func (s *WriterSink) AppendLine(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.w, line)
}

func (s *WriterSink) Finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Err returns the transport error of the finished run, if any.
func (s *WriterSink) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

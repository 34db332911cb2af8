package poller

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/veranemoloko/fusionctl/internal/domain"
)

// Sink receives progress messages while a task runs.
type Sink interface {
	Start(operation string) error
	Emit(msg domain.Message) error
}

// WriterSink writes an "<operation>:" header followed by one line per message.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterSink returns a Sink writing to w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

func (s *WriterSink) Start(operation string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintf(s.w, "%s:\n", operation)
	return err
}

func (s *WriterSink) Emit(msg domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintln(s.w, msg.Text)
	return err
}

// FileSink is a WriterSink appending to a workflow output logs file.
type FileSink struct {
	*WriterSink
	f *os.File
}

// OpenFileSink opens path for appending, creating it if needed.
func OpenFileSink(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open workflow output logs %s: %w", path, err)
	}
	return &FileSink{WriterSink: NewWriterSink(f), f: f}, nil
}

// Close closes the underlying file.
func (s *FileSink) Close() error {
	return s.f.Close()
}

// MultiSink fans messages out to several sinks. Every sink sees every call;
// the first error is returned.
type MultiSink []Sink

func (m MultiSink) Start(operation string) error {
	var first error
	for _, s := range m {
		if err := s.Start(operation); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m MultiSink) Emit(msg domain.Message) error {
	var first error
	for _, s := range m {
		if err := s.Emit(msg); err != nil && first == nil {
			first = err
		}
	}
	return first
}

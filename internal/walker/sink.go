package walker

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/harrison/gpfind/internal/models"
)

// PrintSink writes discovered file paths to an output stream, one per line.
//
// Several printers may drain the same channel through one sink; writes are
// serialized so lines never interleave. Output is buffered and flushed when
// the last printer finishes.
type PrintSink struct {
	mu      sync.Mutex
	out     *bufio.Writer
	printed atomic.Int64
}

// NewPrintSink creates a sink writing to w.
func NewPrintSink(w io.Writer) *PrintSink {
	return &PrintSink{out: bufio.NewWriter(w)}
}

// Drain consumes paths until the channel is closed and empty, or ctx ends.
func (s *PrintSink) Drain(ctx context.Context, files <-chan models.FilePath) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case p, ok := <-files:
			if !ok {
				return nil
			}
			if err := s.write(p); err != nil {
				return err
			}
		}
	}
}

func (s *PrintSink) write(p models.FilePath) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.out.WriteString(string(p)); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	if err := s.out.WriteByte('\n'); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	s.printed.Add(1)
	return nil
}

// Flush writes any buffered output.
func (s *PrintSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.out.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	return nil
}

// Printed returns the number of paths written so far.
func (s *PrintSink) Printed() int64 {
	return s.printed.Load()
}

package llm

import (
	"errors"
	"io"
	"strings"
	"sync"
)

// RecvFunc returns the next text delta. It returns io.EOF when the stream
// has ended normally.
type RecvFunc func() (string, error)

// Stream is a lazy, single-consumption sequence of text deltas.
// Nothing is read from the backend until Next is called and deltas are not
// buffered for replay. A Stream must not be consumed from multiple goroutines.
//
//	for s.Next() {
//		fmt.Print(s.Text())
//	}
//	if err := s.Err(); err != nil { ... }
type Stream struct {
	// Provider and Model identify the backend that produced the stream.
	Provider string
	Model    string

	recv      RecvFunc
	closer    func() error
	closeOnce sync.Once
	closeErr  error

	current string
	err     error
	done    bool
}

// NewStream wraps a receive function. closer is called exactly once, when
// the stream ends or Close is called; it may be nil.
func NewStream(recv RecvFunc, closer func() error) *Stream {
	return &Stream{recv: recv, closer: closer}
}

// StreamFromDeltas returns a stream that yields the given deltas.
func StreamFromDeltas(deltas ...string) *Stream {
	i := 0
	return NewStream(func() (string, error) {
		if i >= len(deltas) {
			return "", io.EOF
		}
		i++
		return deltas[i-1], nil
	}, nil)
}

// OpenStream reads the first delta before returning so that a backend that
// cannot be reached is reported to the caller instead of through Err. The
// remaining deltas are read lazily.
func OpenStream(recv RecvFunc, closer func() error) (*Stream, error) {
	first, err := recv()
	if err != nil && !errors.Is(err, io.EOF) {
		if closer != nil {
			_ = closer()
		}
		return nil, err
	}

	pending := true
	ended := errors.Is(err, io.EOF)
	return NewStream(func() (string, error) {
		if pending {
			pending = false
			if !ended {
				return first, nil
			}
		}
		if ended {
			return "", io.EOF
		}
		return recv()
	}, closer), nil
}

// Next advances to the next non-empty delta. It returns false at the end of
// the stream or on error.
func (s *Stream) Next() bool {
	if s.done {
		return false
	}
	for {
		delta, err := s.recv()
		if err != nil {
			s.done = true
			if !errors.Is(err, io.EOF) {
				s.err = err
			}
			_ = s.Close()
			return false
		}
		if delta == "" {
			continue
		}
		s.current = delta
		return true
	}
}

// Text returns the current delta.
func (s *Stream) Text() string {
	return s.current
}

// Err returns the first non-EOF error encountered.
func (s *Stream) Err() error {
	return s.err
}

// Close releases the underlying connection. Safe to call more than once.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.done = true
		if s.closer != nil {
			s.closeErr = s.closer()
		}
	})
	return s.closeErr
}

// Collect drains the stream and returns the concatenated text.
func (s *Stream) Collect() (string, error) {
	defer s.Close()

	var sb strings.Builder
	for s.Next() {
		sb.WriteString(s.Text())
	}
	return sb.String(), s.Err()
}

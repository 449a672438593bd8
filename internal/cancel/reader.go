package cancel

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
)

const keyBufferSize = 256

// ReaderSource turns a blocking reader, usually stdin, into a KeySource.
// A single goroutine reads runes into a buffered channel until the reader
// fails or the context is done. Keystrokes arriving while the channel is
// full are dropped.
type ReaderSource struct {
	keys chan rune
	done chan struct{}
	err  error
}

// NewReaderSource starts reading from r. Passing the same *bufio.Reader
// used for startup prompts keeps input typed ahead of the prompt answers.
func NewReaderSource(ctx context.Context, r *bufio.Reader, logger *slog.Logger) *ReaderSource {
	s := ReaderSource{
		keys: make(chan rune, keyBufferSize),
		done: make(chan struct{}),
	}

	go func() {
		defer close(s.done)

		for {
			ch, _, err := r.ReadRune()
			if err != nil {
				if !errors.Is(err, io.EOF) {
					s.err = err
					logger.Debug("keyboard input closed", slog.String("error", err.Error()))
				}
				return
			}

			select {
			case <-ctx.Done():
				return
			case s.keys <- ch:
			default:
			}
		}
	}()

	return &s
}

func (s *ReaderSource) Available() bool {
	return len(s.keys) > 0
}

func (s *ReaderSource) ReadKey() (rune, bool) {
	select {
	case r := <-s.keys:
		return r, true
	default:
		return 0, false
	}
}

// Done is closed when the reader goroutine has exited.
func (s *ReaderSource) Done() <-chan struct{} {
	return s.done
}

// Err returns the read error that stopped the goroutine, if any. It is only
// meaningful after Done is closed.
func (s *ReaderSource) Err() error {
	<-s.done
	return s.err
}

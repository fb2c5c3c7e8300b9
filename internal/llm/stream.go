package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Stream is a forward-only sequence of generated text chunks. Recv blocks
// until the next chunk arrives and returns io.EOF once the model signals
// completion. Close releases the underlying connection and may be called
// at any point, including before the stream is drained.
type Stream interface {
	Recv() (string, error)
	Close() error
}

type openaiStream struct {
	stream *openai.ChatCompletionStream
	cancel context.CancelFunc
	onDone func(err error)
	done   bool
}

func (s *openaiStream) Recv() (string, error) {
	for {
		resp, err := s.stream.Recv()
		if errors.Is(err, io.EOF) {
			s.finish(nil)
			return "", io.EOF
		}
		if err != nil {
			s.finish(err)
			return "", fmt.Errorf("%w: stream interrupted: %w", ErrUpstreamServiceFailure, err)
		}

		if len(resp.Choices) == 0 {
			continue
		}
		// Role-only and empty deltas carry no text.
		if content := resp.Choices[0].Delta.Content; content != "" {
			return content, nil
		}
	}
}

func (s *openaiStream) Close() error {
	s.finish(nil)
	s.stream.Close()
	s.cancel()
	return nil
}

func (s *openaiStream) finish(err error) {
	if s.done {
		return
	}
	s.done = true
	if s.onDone != nil {
		s.onDone(err)
	}
}

type staticStream struct {
	chunks []string
	pos    int
}

// StaticStream replays fixed chunks. Used for canned replies that never
// reach the model (no FAQ match, empty result set, error messages).
func StaticStream(chunks ...string) Stream {
	return &staticStream{chunks: chunks}
}

func (s *staticStream) Recv() (string, error) {
	if s.pos >= len(s.chunks) {
		return "", io.EOF
	}
	chunk := s.chunks[s.pos]
	s.pos++
	return chunk, nil
}

func (s *staticStream) Close() error {
	s.pos = len(s.chunks)
	return nil
}

// Collect drains the stream and returns the concatenated text.
func Collect(s Stream) (string, error) {
	defer s.Close()

	var b strings.Builder
	err := Forward(s, func(chunk string) error {
		b.WriteString(chunk)
		return nil
	})
	return b.String(), err
}

// Forward pulls chunks in order and hands each one to fn. It stops at the
// end of the stream, on a stream error, or when fn returns an error.
func Forward(s Stream, fn func(chunk string) error) error {
	for {
		chunk, err := s.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(chunk); err != nil {
			return err
		}
	}
}

package completion

import (
	"context"
	"io"
	"sync"
)

// Scripted is a deterministic Service for tests: each call consumes the
// next reply in order. An empty reply models an empty upstream stream;
// Err, when set, fails every call.
type Scripted struct {
	Replies []string
	Err     error

	mu sync.Mutex
	i  int
}

func (s *Scripted) next() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.i >= len(s.Replies) {
		return ""
	}
	r := s.Replies[s.i]
	s.i++
	return r
}

func (s *Scripted) Complete(_ context.Context, _ Request) (string, error) {
	if s.Err != nil {
		return "", s.Err
	}
	return s.next(), nil
}

func (s *Scripted) Stream(_ context.Context, _ Request) (TokenStream, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return &scriptedStream{text: []rune(s.next())}, nil
}

type scriptedStream struct {
	text []rune
	pos  int
}

// Recv emits fixed-size rune chunks so tests exercise multi-chunk paths.
func (ss *scriptedStream) Recv() (string, error) {
	if ss.pos >= len(ss.text) {
		return "", io.EOF
	}
	end := ss.pos + 8
	if end > len(ss.text) {
		end = len(ss.text)
	}
	out := string(ss.text[ss.pos:end])
	ss.pos = end
	return out, nil
}

func (ss *scriptedStream) Close() {}

// Package analyzertest provides a scripted Analyzer for tests.
package analyzertest

import (
	"context"
	"errors"
	"sync"

	"github.com/papergrade/core/internal/modules/grading/analyzer"
)

// ErrExhausted is returned once every scripted reply has been used.
var ErrExhausted = errors.New("analyzertest: no scripted reply left")

// Reply is one canned answer.
type Reply struct {
	Text string
	Err  error
}

// Call records what the analyzer was asked.
type Call struct {
	Images []analyzer.Image
	Prompt string
}

// Scripted returns its replies in order and records every call.
type Scripted struct {
	mu      sync.Mutex
	replies []Reply
	calls   []Call
}

func New(replies ...Reply) *Scripted {
	return &Scripted{replies: replies}
}

// Text is shorthand for a scripted analyzer that answers with texts.
func Text(texts ...string) *Scripted {
	replies := make([]Reply, len(texts))
	for i, t := range texts {
		replies[i] = Reply{Text: t}
	}
	return New(replies...)
}

func (s *Scripted) Analyze(ctx context.Context, images []analyzer.Image, prompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Images: images, Prompt: prompt})
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(s.replies) == 0 {
		return "", ErrExhausted
	}
	r := s.replies[0]
	s.replies = s.replies[1:]
	return r.Text, r.Err
}

func (s *Scripted) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

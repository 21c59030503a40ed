// Package chat runs the conversation: it keeps the transcript, augments each
// prompt and sends it through a retrieval pipeline.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xhad/ayurchat/internal/logger"
	"github.com/xhad/ayurchat/internal/models"
	"github.com/xhad/ayurchat/internal/types"
)

const DefaultTimeout = 2 * time.Minute

var (
	ErrEmptyPrompt    = errors.New("prompt is empty")
	ErrTurnInProgress = errors.New("a turn is already in progress")
)

// TurnError is a recoverable per-turn failure. The user turn that caused it
// stays in the transcript without a reply.
type TurnError struct {
	Prompt string
	Err    error
}

func (e *TurnError) Error() string {
	return fmt.Sprintf("turn failed: %v", e.Err)
}

func (e *TurnError) Unwrap() error {
	return e.Err
}

// TurnOptions control a single call to HandleTurn.
type TurnOptions struct {
	Suffix  string
	Timeout time.Duration
	Stream  *Stream
}

// Augment appends the safety suffix to a raw prompt.
func Augment(raw, suffix string) string {
	return raw + suffix
}

// HandleTurn answers one prompt and returns the transcript with the user and
// assistant turns appended. On failure the returned transcript ends with the
// user turn and the error is a *TurnError. An empty prompt returns t
// unchanged with ErrEmptyPrompt.
func HandleTurn(ctx context.Context, t Transcript, raw string, p types.Pipeline, opts TurnOptions) (Transcript, error) {
	if opts.Stream != nil {
		defer opts.Stream.close()
	}

	if strings.TrimSpace(raw) == "" {
		return t, ErrEmptyPrompt
	}

	augmented := Augment(raw, opts.Suffix)
	t = t.Append(models.Turn{
		Role:    models.RoleUser,
		Text:    augmented,
		Display: raw,
	})

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	var onToken func(string)
	if opts.Stream != nil {
		onToken = opts.Stream.send
	}

	start := time.Now()
	answer, err := p.Answer(ctx, augmented, onToken)
	if err != nil {
		logger.Warn("turn failed after %s: %v", time.Since(start).Round(time.Millisecond), err)
		return t, &TurnError{Prompt: raw, Err: err}
	}
	logger.Debug("turn answered in %s", time.Since(start).Round(time.Millisecond))

	return t.Append(models.Turn{
		Role: models.RoleAssistant,
		Text: answer,
	}), nil
}

type SessionConfig struct {
	Pipeline     types.Pipeline
	SafetySuffix string
	Timeout      time.Duration
}

// Session owns one conversation's transcript and allows a single pending
// turn at a time.
type Session struct {
	config SessionConfig

	mu         sync.Mutex
	transcript Transcript
	busy       atomic.Bool
}

func NewSession(config SessionConfig) (*Session, error) {
	if config.Pipeline == nil {
		return nil, errors.New("session needs a pipeline")
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}

	return &Session{config: config}, nil
}

// Submit runs one turn and returns the assistant reply. stream may be nil;
// when set it is closed once the turn ends, including on rejection.
func (s *Session) Submit(ctx context.Context, raw string, stream *Stream) (models.Turn, error) {
	if !s.busy.CompareAndSwap(false, true) {
		if stream != nil {
			stream.close()
		}
		return models.Turn{}, ErrTurnInProgress
	}
	defer s.busy.Store(false)

	updated, err := HandleTurn(ctx, s.Transcript(), raw, s.config.Pipeline, TurnOptions{
		Suffix:  s.config.SafetySuffix,
		Timeout: s.config.Timeout,
		Stream:  stream,
	})

	s.mu.Lock()
	s.transcript = updated
	s.mu.Unlock()

	if err != nil {
		return models.Turn{}, err
	}

	reply, _ := updated.Last()
	return reply, nil
}

func (s *Session) Transcript() Transcript {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript
}

// Busy reports whether a turn is awaiting its response.
func (s *Session) Busy() bool {
	return s.busy.Load()
}

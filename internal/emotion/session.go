package emotion

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"careguardian/internal/apperr"
)

// Generator is the slice of the generative-AI collaborator the session
// needs.
type Generator interface {
	GenerateJSON(ctx context.Context, prompt string) (string, error)
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// State of the classifier workflow.
type State int

const (
	StateIdle State = iota
	StateSubmitting
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateSubmitting:
		return "submitting"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "idle"
	}
}

// Session runs the single-flight risk classification workflow:
// Idle -> Submitting -> {Succeeded | Failed} -> Idle. A second submit
// while one is in flight is rejected, never queued.
type Session struct {
	gen     Generator
	timeout time.Duration
	logger  *zap.Logger

	mu      sync.Mutex
	state   State
	text    string
	result  *Result
	userMsg string
	seq     uint64 // bumped on Reset so stale completions are discarded
}

func NewSession(gen Generator, timeout time.Duration, logger *zap.Logger) *Session {
	return &Session{
		gen:     gen,
		timeout: timeout,
		logger:  logger,
	}
}

// Begin validates the input and moves the session from Idle to
// Submitting, clearing any previous result. It returns apperr.ErrBusy
// while a classification is already in flight and a validation error for
// empty input; both leave the session untouched.
func (s *Session) Begin(text string) error {
	if strings.TrimSpace(text) == "" {
		return apperr.Validation("Please describe how you are feeling first.")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateSubmitting {
		return apperr.ErrBusy
	}
	s.state = StateSubmitting
	s.text = text
	s.result = nil
	s.userMsg = ""
	return nil
}

const classifyPromptFmt = `Analyze sentiment from: "%s". Categorize as 'Danger', 'Warning', or 'Safe'. Respond ONLY with JSON: {"level": "...", "message": "..."}.`

// Classify performs the remote call for a previously accepted Begin and
// transitions to Succeeded or Failed. The call is bounded by the session
// timeout so a hung collaborator cannot hold the single-flight guard
// forever.
func (s *Session) Classify(ctx context.Context) (*Result, error) {
	s.mu.Lock()
	if s.state != StateSubmitting {
		s.mu.Unlock()
		return nil, fmt.Errorf("classify called in state %s", s.state)
	}
	text := s.text
	seq := s.seq
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	raw, err := s.gen.GenerateJSON(ctx, fmt.Sprintf(classifyPromptFmt, text))
	if err != nil {
		return nil, s.fail(seq, err)
	}

	res, err := parseResult(raw)
	if err != nil {
		return nil, s.fail(seq, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seq != seq {
		// Session was torn down while the call was in flight.
		return nil, apperr.ErrNoSession
	}
	s.state = StateSucceeded
	s.result = res
	return res, nil
}

func (s *Session) fail(seq uint64, err error) error {
	if apperr.KindOf(err) == 0 {
		err = apperr.Transport("Could not analyze mood. Please try again.", err)
	}
	s.logger.Warn("mood classification failed", zap.Error(err))

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seq != seq {
		return apperr.ErrNoSession
	}
	s.state = StateFailed
	s.userMsg = apperr.UserMessage(err)
	return err
}

// parseResult decodes the classifier payload into exactly the expected
// two-field shape. Missing fields, unparsable JSON and unrecognized level
// values fail closed; the session never proceeds on a guessed default.
func parseResult(raw string) (*Result, error) {
	var wire struct {
		Level   *string `json:"level"`
		Message *string `json:"message"`
	}
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return nil, apperr.Format("Could not analyze mood. Please try again.",
			fmt.Errorf("unparsable classifier payload: %w", err))
	}
	if wire.Level == nil || wire.Message == nil {
		return nil, apperr.Format("Could not analyze mood. Please try again.",
			fmt.Errorf("classifier payload missing level or message"))
	}
	level, err := ParseLevel(*wire.Level)
	if err != nil {
		return nil, err
	}
	return &Result{Level: level, Message: *wire.Message}, nil
}

const suggestionPromptFmt = `A user of a health companion app wrote: "%s". Their emotional risk level was classified as %s. Write one short, compassionate follow-up message (2 sentences max) for them. Respond with plain text only.`

// Suggestion requests a compassionate follow-up for a completed
// classification. It is best-effort: callers must treat a failure as a
// missing suggestion, never as a failure of the classification itself.
func (s *Session) Suggestion(ctx context.Context, text string, level Level) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	out, err := s.gen.GenerateText(ctx, fmt.Sprintf(suggestionPromptFmt, text, level))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// State returns the current workflow state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Result returns the last validated classification, if any.
func (s *Session) Result() *Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return nil
	}
	r := *s.result
	return &r
}

// ErrMessage returns the user-visible message of the last failure.
func (s *Session) ErrMessage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userMsg
}

// Reset returns the session to Idle and invalidates any in-flight call so
// its late completion is discarded. Called on logout.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateIdle
	s.text = ""
	s.result = nil
	s.userMsg = ""
	s.seq++
}

// Package speech defines the synthesis contract the response coordinator
// speaks through, plus a simulated synthesizer for running without audio
// hardware or credentials.
package speech

import (
	"context"
	"strings"
	"time"
)

// Synthesizer converts a single utterance to audible speech. Speak blocks
// until the utterance has been fully rendered (or the context is
// cancelled) so callers can sequence speech against other actions.
type Synthesizer interface {
	Speak(ctx context.Context, text string) error
}

// Sink consumes raw synthesized audio.
type Sink interface {
	// SendAudio queues raw samples for playback.
	SendAudio(audio []byte) error
	// Flush blocks until all queued audio has been played.
	Flush(ctx context.Context) error
	Close() error
}

// SimulatedOption configures a simulated synthesizer.
type SimulatedOption func(*Simulated)

// WithWordsPerMinute adjusts the simulated speaking rate.
func WithWordsPerMinute(wpm int) SimulatedOption {
	return func(s *Simulated) {
		if wpm > 0 {
			s.wordsPerMinute = wpm
		}
	}
}

// Simulated is a Synthesizer that produces no audio but preserves speech
// timing, pausing for roughly as long as the utterance would take to say.
type Simulated struct {
	wordsPerMinute int
}

// NewSimulated creates a simulated synthesizer at a natural speaking rate.
func NewSimulated(opts ...SimulatedOption) *Simulated {
	s := &Simulated{wordsPerMinute: 150}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Simulated) Speak(ctx context.Context, text string) error {
	words := len(strings.Fields(text))
	if words == 0 {
		return nil
	}
	duration := time.Duration(words) * time.Minute / time.Duration(s.wordsPerMinute)

	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

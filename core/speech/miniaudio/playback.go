// Package miniaudio plays synthesized speech through the default output
// device via malgo.
package miniaudio

import (
	"context"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/chelleboyer/reachy-recognizer/core/speech"
)

// Option configures a playback sink.
type Option func(*Sink)

// WithSampleRate sets the playback sample rate. It must match the rate
// the synthesizer produces.
func WithSampleRate(rate int) Option {
	return func(s *Sink) {
		if rate > 0 {
			s.sampleRate = uint32(rate)
		}
	}
}

// Sink is a speech.Sink that plays mono linear16 audio on the default
// output device.
type Sink struct {
	sampleRate uint32

	audioContext *malgo.AllocatedContext
	device       *malgo.Device

	mu      sync.Mutex
	pending []byte
	marks   []playbackMark
}

var _ speech.Sink = (*Sink)(nil)

type playbackMark struct {
	position int
	callback func()
}

// NewSink initializes the audio context and starts the playback device.
func NewSink(opts ...Option) (*Sink, error) {
	s := &Sink{sampleRate: 24000}
	for _, opt := range opts {
		opt(s)
	}

	audioContext, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(string) {})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}
	s.audioContext = audioContext

	format := malgo.FormatS16
	channels := 1
	bytesPerFrame := malgo.SampleSizeInBytes(format) * channels

	config := malgo.DefaultDeviceConfig(malgo.Playback)
	config.SampleRate = s.sampleRate
	config.Playback.Format = format
	config.Playback.Channels = uint32(channels)
	config.Alsa.NoMMap = 1
	config.PeriodSizeInFrames = s.sampleRate / 10 // ~100ms of audio
	config.Periods = 4

	device, err := malgo.InitDevice(audioContext.Context, config, malgo.DeviceCallbacks{
		Data: s.processAudio(bytesPerFrame),
	})
	if err != nil {
		s.teardownContext()
		return nil, fmt.Errorf("failed to initialize playback device: %w", err)
	}
	s.device = device

	if err := device.Start(); err != nil {
		device.Uninit()
		s.teardownContext()
		return nil, fmt.Errorf("failed to start playback device: %w", err)
	}

	return s, nil
}

// SendAudio queues raw samples for playback.
func (s *Sink) SendAudio(audio []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.device == nil {
		return fmt.Errorf("playback device closed")
	}
	s.pending = append(s.pending, audio...)
	return nil
}

// Flush blocks until all queued audio has been consumed by the device.
func (s *Sink) Flush(ctx context.Context) error {
	played := make(chan struct{})

	s.mu.Lock()
	if s.device == nil {
		s.mu.Unlock()
		return fmt.Errorf("playback device closed")
	}
	s.marks = append(s.marks, playbackMark{
		position: len(s.pending),
		callback: func() { close(played) },
	})
	s.mu.Unlock()

	select {
	case <-played:
		return nil
	case <-ctx.Done():
		s.discard()
		return ctx.Err()
	}
}

// Close stops playback and releases the device and audio context.
func (s *Sink) Close() error {
	s.mu.Lock()
	device := s.device
	s.device = nil
	s.pending = nil
	s.marks = nil
	s.mu.Unlock()

	if device != nil {
		_ = device.Stop()
		device.Uninit()
	}
	return s.teardownContext()
}

func (s *Sink) discard() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = nil
	s.marks = nil
}

func (s *Sink) teardownContext() error {
	if s.audioContext == nil {
		return nil
	}
	err := s.audioContext.Uninit()
	s.audioContext.Free()
	s.audioContext = nil
	return err
}

func (s *Sink) processAudio(bytesPerFrame int) malgo.DataProc {
	return func(pOutput, _ []byte, frameCount uint32) {
		need := int(frameCount) * bytesPerFrame

		s.mu.Lock()
		consumed := min(need, len(s.pending))
		copy(pOutput, s.pending[:consumed])
		s.pending = s.pending[consumed:]

		var toCall []playbackMark
		remaining := s.marks[:0]
		for i, mark := range s.marks {
			if mark.position <= consumed {
				toCall = append(toCall, s.marks[i])
			} else {
				s.marks[i].position -= consumed
				remaining = append(remaining, s.marks[i])
			}
		}
		s.marks = remaining
		s.mu.Unlock()

		if len(toCall) > 0 {
			go func() {
				for _, mark := range toCall {
					mark.callback()
				}
			}()
		}
	}
}

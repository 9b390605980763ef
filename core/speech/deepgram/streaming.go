// Package deepgram synthesizes speech through Deepgram's text-to-speech
// APIs, either over the streaming websocket or the batch REST endpoint.
package deepgram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/chelleboyer/reachy-recognizer/core/speech"
)

const (
	defaultVoice      = "aura-asteria-en"
	defaultSampleRate = 24000
)

// Option configures a Deepgram synthesizer.
type Option func(*options)

type options struct {
	apiKey     string
	voice      string
	sampleRate int
	sink       speech.Sink
}

// WithAPIKey overrides the DEEPGRAM_API_KEY environment variable.
func WithAPIKey(key string) Option {
	return func(o *options) { o.apiKey = key }
}

// WithVoice selects the Aura voice model.
func WithVoice(voice string) Option {
	return func(o *options) {
		if voice != "" {
			o.voice = voice
		}
	}
}

// WithSampleRate sets the requested linear16 sample rate.
func WithSampleRate(rate int) Option {
	return func(o *options) {
		if rate > 0 {
			o.sampleRate = rate
		}
	}
}

// WithSink directs synthesized audio to the given sink.
func WithSink(sink speech.Sink) Option {
	return func(o *options) { o.sink = sink }
}

func resolveOptions(opts []Option) (options, error) {
	o := options{
		voice:      defaultVoice,
		sampleRate: defaultSampleRate,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.apiKey == "" {
		o.apiKey = os.Getenv("DEEPGRAM_API_KEY")
	}
	if o.apiKey == "" {
		return o, fmt.Errorf("deepgram api key not found")
	}
	if o.sink == nil {
		return o, fmt.Errorf("no audio sink configured")
	}
	return o, nil
}

// StreamingSynthesizer speaks through the wss://api.deepgram.com/v1/speak
// websocket, opening one connection per utterance and streaming audio
// into the sink as it arrives.
type StreamingSynthesizer struct {
	options options
}

var _ speech.Synthesizer = (*StreamingSynthesizer)(nil)

// NewStreamingSynthesizer creates a websocket-based synthesizer.
func NewStreamingSynthesizer(opts ...Option) (*StreamingSynthesizer, error) {
	o, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}
	return &StreamingSynthesizer{options: o}, nil
}

type websocketMessage struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Speak synthesizes the utterance and blocks until the sink has played it.
func (s *StreamingSynthesizer) Speak(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}

	conn, err := s.connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	var writeMu sync.Mutex
	send := func(msg websocketMessage) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := conn.WriteJSON(msg); err != nil {
			return fmt.Errorf("failed to write to websocket: %w", err)
		}
		return nil
	}

	if err := send(websocketMessage{Type: "Speak", Text: text}); err != nil {
		return err
	}
	if err := send(websocketMessage{Type: "Flush"}); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		for {
			msgType, msg, err := conn.ReadMessage()
			if err != nil {
				done <- fmt.Errorf("websocket read failed: %w", err)
				return
			}

			switch msgType {
			case websocket.BinaryMessage:
				if len(msg) == 0 {
					continue
				}
				if err := s.options.sink.SendAudio(msg); err != nil {
					done <- fmt.Errorf("failed to queue audio: %w", err)
					return
				}
			case websocket.TextMessage:
				var parsed websocketMessage
				if err := json.Unmarshal(msg, &parsed); err != nil {
					continue
				}
				if parsed.Type == "Flushed" {
					_ = send(websocketMessage{Type: "Close"})
					done <- nil
					return
				}
			}
		}
	}()

	select {
	case err := <-done:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		_ = send(websocketMessage{Type: "Clear"})
		return ctx.Err()
	}

	return s.options.sink.Flush(ctx)
}

func (s *StreamingSynthesizer) connect(ctx context.Context) (*websocket.Conn, error) {
	urlValues := url.Values{}
	urlValues.Set("encoding", "linear16")
	urlValues.Set("sample_rate", strconv.Itoa(s.options.sampleRate))
	urlValues.Set("model", s.options.voice)
	urlValues.Set("container", "none")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx,
		(&url.URL{
			Scheme: "wss",
			Host:   "api.deepgram.com", Path: "/v1/speak",
			RawQuery: urlValues.Encode(),
		}).String(),
		http.Header{"Authorization": {"token " + s.options.apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}
	return conn, nil
}

package deepgram

import (
	"context"
	"fmt"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/speak/v1/rest"
	clientinterfaces "github.com/deepgram/deepgram-go-sdk/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/pkg/client/speak"

	"github.com/chelleboyer/reachy-recognizer/core/speech"
)

// RESTSynthesizer speaks through Deepgram's batch speak endpoint. Each
// utterance is synthesized in full before playback starts, which adds
// latency over the streaming path but needs no websocket.
type RESTSynthesizer struct {
	options options
	speak   *api.Client
}

var _ speech.Synthesizer = (*RESTSynthesizer)(nil)

// NewRESTSynthesizer creates a REST-based synthesizer.
func NewRESTSynthesizer(opts ...Option) (*RESTSynthesizer, error) {
	o, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}

	c := client.NewREST(o.apiKey, &clientinterfaces.ClientOptions{})
	return &RESTSynthesizer{
		options: o,
		speak:   api.New(c),
	}, nil
}

// Speak synthesizes the utterance and blocks until the sink has played it.
func (s *RESTSynthesizer) Speak(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}

	buf := &clientinterfaces.RawResponse{}
	if _, err := s.speak.ToStream(ctx, text, &clientinterfaces.SpeakOptions{
		Model:      s.options.voice,
		Encoding:   "linear16",
		SampleRate: s.options.sampleRate,
		Container:  "none",
	}, buf); err != nil {
		return fmt.Errorf("deepgram speak request failed: %w", err)
	}

	if err := s.options.sink.SendAudio(buf.Bytes()); err != nil {
		return fmt.Errorf("failed to queue audio: %w", err)
	}
	return s.options.sink.Flush(ctx)
}

// Package speech turns narration text into audio with an authoritative duration.
package speech

import (
	"fmt"
	"time"

	"github.com/spherical/paper-video/internal/domain"
	"github.com/spherical/paper-video/internal/observability"
)

// Backend names accepted by New.
const (
	BackendOpenAI = "openai"
	BackendEspeak = "espeak"
)

// Options selects and configures a speech backend
type Options struct {
	Backend     string
	BaseURL     string
	APIKey      string
	Model       string
	Voice       string
	Timeout     time.Duration
	EspeakPath  string
	FFprobePath string
	WorkDir     string
}

// New builds the configured speech backend
func New(opts Options, logger *observability.Logger) (domain.SpeechSynthesizer, error) {
	prober := NewProber(opts.FFprobePath, opts.WorkDir)

	switch opts.Backend {
	case BackendOpenAI, "":
		if opts.APIKey == "" {
			return nil, domain.ConfigError("speech API key is not set (TTS_API_KEY)", nil)
		}
		return NewOpenAIBackend(OpenAIConfig{
			BaseURL: opts.BaseURL,
			APIKey:  opts.APIKey,
			Model:   opts.Model,
			Voice:   opts.Voice,
			Timeout: opts.Timeout,
		}, prober, logger), nil
	case BackendEspeak:
		return NewEspeakBackend(opts.EspeakPath, logger), nil
	default:
		return nil, domain.ConfigError(fmt.Sprintf("unknown speech backend: %s", opts.Backend), nil)
	}
}

// narration builds a Narration, reading the duration from the audio itself
func narration(audio []byte, format string, probe func([]byte, string) (time.Duration, error)) (domain.Narration, error) {
	var (
		dur time.Duration
		err error
	)
	if format == "wav" {
		dur, err = WAVDuration(audio)
	}
	if format != "wav" || err != nil {
		if probe == nil {
			return domain.Narration{}, domain.SynthesisError("cannot determine narration duration", err)
		}
		dur, err = probe(audio, format)
		if err != nil {
			return domain.Narration{}, domain.SynthesisError("cannot determine narration duration", err)
		}
	}
	if dur <= 0 {
		return domain.Narration{}, domain.SynthesisError("narration has no audio", nil)
	}
	return domain.Narration{Audio: audio, Format: format, Duration: dur}, nil
}

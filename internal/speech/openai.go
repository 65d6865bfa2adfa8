package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spherical/paper-video/internal/domain"
	"github.com/spherical/paper-video/internal/observability"
)

const (
	defaultSpeechURL   = "https://api.openai.com/v1"
	defaultSpeechModel = "tts-1"
	defaultVoice       = "alloy"
)

// OpenAIConfig configures an OpenAI-compatible /audio/speech endpoint
type OpenAIConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Voice   string
	Timeout time.Duration
}

// OpenAIBackend synthesizes speech over HTTP and requests WAV output so the
// duration can be read from the header.
type OpenAIBackend struct {
	endpoint   string
	apiKey     string
	model      string
	voice      string
	httpClient *http.Client
	prober     *Prober
	logger     *observability.Logger
}

type speechRequest struct {
	Model          string `json:"model"`
	Input          string `json:"input"`
	Voice          string `json:"voice"`
	ResponseFormat string `json:"response_format"`
}

// NewOpenAIBackend creates the HTTP speech backend. prober may be nil when
// the endpoint is known to return WAV.
func NewOpenAIBackend(cfg OpenAIConfig, prober *Prober, logger *observability.Logger) *OpenAIBackend {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultSpeechURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultSpeechModel
	}
	if cfg.Voice == "" {
		cfg.Voice = defaultVoice
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = observability.Nop()
	}
	return &OpenAIBackend{
		endpoint:   strings.TrimRight(cfg.BaseURL, "/") + "/audio/speech",
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		voice:      cfg.Voice,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		prober:     prober,
		logger:     logger,
	}
}

// Synthesize implements domain.SpeechSynthesizer. The endpoint detects the
// language from the text; locale is only logged.
func (b *OpenAIBackend) Synthesize(ctx context.Context, text, locale string) (domain.Narration, error) {
	if strings.TrimSpace(text) == "" {
		return domain.Narration{}, domain.SynthesisError("narration text is empty", nil)
	}

	body, err := json.Marshal(speechRequest{
		Model:          b.model,
		Input:          text,
		Voice:          b.voice,
		ResponseFormat: "wav",
	})
	if err != nil {
		return domain.Narration{}, domain.SynthesisError("marshal speech request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.Narration{}, domain.SynthesisError("build speech request", err)
	}
	req.Header.Set("Authorization", "Bearer "+b.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return domain.Narration{}, domain.CancelledError("speech request cancelled", ctx.Err())
		}
		return domain.Narration{}, domain.SynthesisError("speech request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return domain.Narration{}, domain.SynthesisError(
			fmt.Sprintf("speech http %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), nil)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Narration{}, domain.SynthesisError("read speech audio", err)
	}

	format := formatFromContentType(resp.Header.Get("Content-Type"), audio)
	var probe func([]byte, string) (time.Duration, error)
	if b.prober != nil {
		probe = func(a []byte, f string) (time.Duration, error) { return b.prober.Duration(ctx, a, f) }
	}

	n, err := narration(audio, format, probe)
	if err != nil {
		return domain.Narration{}, err
	}

	b.logger.Debug().
		Str("locale", locale).
		Str("format", format).
		Dur("duration", n.Duration).
		Msg("Narration synthesized")
	return n, nil
}

func formatFromContentType(ct string, audio []byte) string {
	if len(audio) >= 12 && string(audio[0:4]) == "RIFF" && string(audio[8:12]) == "WAVE" {
		return "wav"
	}
	switch {
	case strings.Contains(ct, "mpeg"), strings.Contains(ct, "mp3"):
		return "mp3"
	case strings.Contains(ct, "ogg"), strings.Contains(ct, "opus"):
		return "ogg"
	case strings.Contains(ct, "flac"):
		return "flac"
	case strings.Contains(ct, "aac"):
		return "aac"
	default:
		return "mp3"
	}
}

package speech

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/spherical/paper-video/internal/domain"
	"github.com/spherical/paper-video/internal/observability"
)

// EspeakBackend synthesizes speech locally with espeak-ng
type EspeakBackend struct {
	path   string
	logger *observability.Logger
}

// NewEspeakBackend creates the local backend. Empty path means "espeak-ng".
func NewEspeakBackend(path string, logger *observability.Logger) *EspeakBackend {
	if path == "" {
		path = "espeak-ng"
	}
	if logger == nil {
		logger = observability.Nop()
	}
	return &EspeakBackend{path: path, logger: logger}
}

// Synthesize implements domain.SpeechSynthesizer. The locale selects the voice.
func (b *EspeakBackend) Synthesize(ctx context.Context, text, locale string) (domain.Narration, error) {
	if strings.TrimSpace(text) == "" {
		return domain.Narration{}, domain.SynthesisError("narration text is empty", nil)
	}

	args := []string{"--stdout", "--stdin"}
	if locale != "" {
		args = append([]string{"-v", locale}, args...)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, b.path, args...)
	cmd.Stdin = strings.NewReader(text)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return domain.Narration{}, domain.CancelledError("speech synthesis cancelled", ctx.Err())
		}
		return domain.Narration{}, domain.SynthesisError(
			fmt.Sprintf("espeak-ng failed: %s", strings.TrimSpace(stderr.String())), err)
	}

	n, err := narration(stdout.Bytes(), "wav", nil)
	if err != nil {
		return domain.Narration{}, err
	}

	b.logger.Debug().Str("locale", locale).Dur("duration", n.Duration).Msg("Narration synthesized")
	return n, nil
}

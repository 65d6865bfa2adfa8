package speech

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/spherical/paper-video/internal/domain"
)

// Prober measures audio duration with ffprobe
type Prober struct {
	path    string
	workDir string
}

// NewProber creates a prober. Empty path means "ffprobe" on PATH.
func NewProber(path, workDir string) *Prober {
	if path == "" {
		path = "ffprobe"
	}
	return &Prober{path: path, workDir: workDir}
}

// Duration stages audio in a temp file and asks ffprobe for its length
func (p *Prober) Duration(ctx context.Context, audio []byte, format string) (time.Duration, error) {
	f, err := os.CreateTemp(domain.ScratchDir(ctx, p.workDir), "paper-video-probe-*."+format)
	if err != nil {
		return 0, fmt.Errorf("create probe file: %w", err)
	}
	defer os.Remove(f.Name())

	if _, err := f.Write(audio); err != nil {
		f.Close()
		return 0, fmt.Errorf("write probe file: %w", err)
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("close probe file: %w", err)
	}

	cmd := exec.CommandContext(ctx, p.path,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		f.Name(),
	)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}

	return parseProbeSeconds(string(output))
}

func parseProbeSeconds(out string) (time.Duration, error) {
	secs, err := strconv.ParseFloat(strings.TrimSpace(out), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration: %w", err)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

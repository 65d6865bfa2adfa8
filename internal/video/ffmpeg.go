package video

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spherical/paper-video/internal/domain"
	"github.com/spherical/paper-video/internal/observability"
	"github.com/spherical/paper-video/internal/render"
)

const (
	defaultFFmpeg = "ffmpeg"
	defaultPreset = "veryfast"
	// all parts share one audio layout so the concat demuxer can copy streams
	audioRate     = "44100"
	audioChannels = "2"
)

// FFmpegEncoder encodes clips with the ffmpeg binary. Each clip becomes one
// still-image part with its own audio track; the parts are then joined with
// the concat demuxer without re-encoding.
type FFmpegEncoder struct {
	ffmpegPath string
	workDir    string
	preset     string
	logger     *observability.Logger
}

// NewFFmpegEncoder creates an encoder. Temporary files live under workDir.
func NewFFmpegEncoder(ffmpegPath, workDir, preset string, logger *observability.Logger) *FFmpegEncoder {
	if ffmpegPath == "" {
		ffmpegPath = defaultFFmpeg
	}
	if preset == "" {
		preset = defaultPreset
	}
	if logger == nil {
		logger = observability.Nop()
	}
	return &FFmpegEncoder{
		ffmpegPath: ffmpegPath,
		workDir:    workDir,
		preset:     preset,
		logger:     logger,
	}
}

// Encode implements domain.VideoEncoder
func (e *FFmpegEncoder) Encode(ctx context.Context, clips []domain.Clip, params domain.EncodingParams, dst io.Writer) error {
	if len(clips) == 0 {
		return fmt.Errorf("no clips to encode")
	}
	bin, err := exec.LookPath(e.ffmpegPath)
	if err != nil {
		return fmt.Errorf("ffmpeg not found: %w", err)
	}

	dir, err := os.MkdirTemp(domain.ScratchDir(ctx, e.workDir), "paper-video-encode-*")
	if err != nil {
		return fmt.Errorf("create encode dir: %w", err)
	}
	defer os.RemoveAll(dir)

	parts := make([]string, 0, len(clips))
	for _, clip := range clips {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		part, err := e.encodeClip(ctx, bin, dir, clip, params)
		if err != nil {
			return err
		}
		parts = append(parts, part)
	}

	out := filepath.Join(dir, "video.mp4")
	if err := e.concat(ctx, bin, dir, parts, out); err != nil {
		return err
	}

	f, err := os.Open(out)
	if err != nil {
		return fmt.Errorf("open encoded video: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(dst, f); err != nil {
		return fmt.Errorf("write video: %w", err)
	}
	return nil
}

func (e *FFmpegEncoder) encodeClip(ctx context.Context, bin, dir string, clip domain.Clip, params domain.EncodingParams) (string, error) {
	frame, err := render.EncodePNG(clip.Frame)
	if err != nil {
		return "", err
	}
	framePath := filepath.Join(dir, fmt.Sprintf("frame_%03d.png", clip.Index))
	if err := os.WriteFile(framePath, frame, 0o600); err != nil {
		return "", fmt.Errorf("write frame: %w", err)
	}

	format := clip.AudioFormat
	if format == "" {
		format = "wav"
	}
	audioPath := filepath.Join(dir, fmt.Sprintf("audio_%03d.%s", clip.Index, format))
	if err := os.WriteFile(audioPath, clip.Audio, 0o600); err != nil {
		return "", fmt.Errorf("write audio: %w", err)
	}

	fps := strconv.Itoa(params.FrameRate)
	partPath := filepath.Join(dir, fmt.Sprintf("part_%03d.mp4", clip.Index))
	args := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-loop", "1", "-framerate", fps, "-i", framePath,
		"-i", audioPath,
		// silence pads the narration up to the last frame
		"-af", "apad",
		"-t", formatSeconds(clip.VisualDuration(params.FrameRate)),
		"-r", fps,
		"-s", fmt.Sprintf("%dx%d", params.Width, params.Height),
		"-c:v", "libx264", "-preset", e.preset, "-tune", "stillimage", "-pix_fmt", "yuv420p",
		"-c:a", "aac", "-ar", audioRate, "-ac", audioChannels,
		partPath,
	}

	startTime := time.Now()
	if err := e.run(ctx, bin, args); err != nil {
		return "", fmt.Errorf("encode clip %d: %w", clip.Index, err)
	}

	e.logger.Debug().
		Int("clip", clip.Index).
		Int("frames", clip.FrameCount).
		Dur("elapsed", time.Since(startTime)).
		Msg("Clip encoded")

	return partPath, nil
}

func (e *FFmpegEncoder) concat(ctx context.Context, bin, dir string, parts []string, out string) error {
	var list strings.Builder
	for _, p := range parts {
		fmt.Fprintf(&list, "file '%s'\n", strings.ReplaceAll(p, "'", `'\''`))
	}
	listPath := filepath.Join(dir, "list.txt")
	if err := os.WriteFile(listPath, []byte(list.String()), 0o600); err != nil {
		return fmt.Errorf("write concat list: %w", err)
	}

	args := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-f", "concat", "-safe", "0", "-i", listPath,
		"-c", "copy", "-movflags", "+faststart",
		out,
	}
	if err := e.run(ctx, bin, args); err != nil {
		return fmt.Errorf("concat parts: %w", err)
	}
	return nil
}

func (e *FFmpegEncoder) run(ctx context.Context, bin string, args []string) error {
	cmd := exec.CommandContext(ctx, bin, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("ffmpeg: %w; out=%s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 6, 64)
}

package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"time"

	"github.com/inpaintx/dataset-ingestion-service/internal/domain/apperr"
	"go.uber.org/zap"
)

// DecodeTimeout is the hard bound on one video decode. The subprocess is
// killed when it elapses.
const DecodeTimeout = 60 * time.Second

// Decoder extracts one frame per second of video via the ffmpeg binary.
// Frame files carry a zero-padded 3-digit sequence number so lexicographic
// order is frame order.
type Decoder struct {
	timeout time.Duration
	logger  *zap.Logger
}

func NewDecoder(logger *zap.Logger) *Decoder {
	return &Decoder{timeout: DecodeTimeout, logger: logger}
}

func (d *Decoder) Available(_ context.Context) error {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return apperr.Wrap(apperr.Unavailable, err, "ffmpeg not reachable")
	}
	return nil
}

func (d *Decoder) ExtractFrames(ctx context.Context, videoPath, outputDir string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	framePattern := filepath.Join(outputDir, "frame_%03d.png")
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-i", videoPath,
		"-vf", "fps=1",
		"-y",
		framePattern,
	)

	output, err := cmd.CombinedOutput()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		d.removePartialFrames(outputDir)
		return nil, apperr.New(apperr.Timeout,
			"video decode exceeded %s and was killed", d.timeout)
	}
	if err != nil {
		d.removePartialFrames(outputDir)
		return nil, fmt.Errorf("ffmpeg error: %w, output: %s", err, string(output))
	}

	frames, err := filepath.Glob(filepath.Join(outputDir, "frame_*.png"))
	if err != nil {
		return nil, fmt.Errorf("glob frames: %w", err)
	}
	if len(frames) == 0 {
		return nil, apperr.New(apperr.InvalidFormat,
			"no frames extracted: video may be corrupt or unsupported")
	}
	sort.Strings(frames)

	d.logger.Debug("frames extracted",
		zap.Int("count", len(frames)),
		zap.String("video", filepath.Base(videoPath)),
	)
	return frames, nil
}

func (d *Decoder) removePartialFrames(outputDir string) {
	partial, err := filepath.Glob(filepath.Join(outputDir, "frame_*.png"))
	if err != nil {
		return
	}
	for _, p := range partial {
		if err := os.Remove(p); err != nil {
			d.logger.Warn("failed to remove partial frame", zap.String("path", p), zap.Error(err))
		}
	}
}

package video

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"

	"dashcam-service/internal/config"
)

// Frame is one sampled frame. Timestamp is the ordinal of the frame among the
// sampled frames (0, 1, 2, ...), not the elapsed video time.
type Frame struct {
	Index     int
	Timestamp float64
	Image     *image.RGBA
}

// Sampler decodes a video file and keeps an evenly spaced subset of frames.
type Sampler struct {
	tools tools
	rate  float64
	log   zerolog.Logger
}

func NewSampler(cfg config.PipelineConfig, log zerolog.Logger) *Sampler {
	return &Sampler{
		tools: tools{
			ffmpeg:  cfg.FFmpegPath,
			ffprobe: cfg.FFprobePath,
			timeout: cfg.DecodeTimeout,
		},
		rate: cfg.SampleRate,
		log:  log.With().Str("component", "sampler").Logger(),
	}
}

func (s *Sampler) Probe(ctx context.Context, path string) (*Info, error) {
	return s.tools.probe(ctx, path)
}

// DecimationInterval returns how many decoded frames map to one sampled frame.
func DecimationInterval(sourceRate, targetRate float64) int {
	if targetRate <= 0 || sourceRate <= targetRate {
		return 1
	}
	interval := int(math.Floor(sourceRate / targetRate))
	if interval < 1 {
		return 1
	}
	return interval
}

// ExtractFrames decodes every frame of the file at path and returns every
// interval-th one, in decode order. The whole result is held in memory.
func (s *Sampler) ExtractFrames(ctx context.Context, path string) ([]Frame, error) {
	info, err := s.tools.probe(ctx, path)
	if err != nil {
		return nil, err
	}
	interval := DecimationInterval(info.FPS, s.rate)

	bin, err := s.tools.lookPath(s.tools.ffmpeg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	ctx, cancel := s.tools.withTimeout(ctx)
	defer cancel()

	args := []string{
		"-v", "error",
		"-nostdin",
		"-noautorotate",
		"-i", path,
		"-map", "0:v:0",
		"-vsync", "passthrough",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"pipe:1",
	}
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start ffmpeg: %v", ErrDecode, err)
	}

	frames, readErr := sampleRaw(stdout, info.Width, info.Height, interval)
	// Drain so ffmpeg is not blocked on a full pipe when we stop early.
	_, _ = io.Copy(io.Discard, stdout)
	waitErr := cmd.Wait()

	if readErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, readErr)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("%w: ffmpeg %s: %v", ErrDecode, path, ctxErr)
	}
	if waitErr != nil {
		if len(frames) == 0 {
			return nil, fmt.Errorf("%w: ffmpeg %s: %v: %s", ErrDecode, path, waitErr, strings.TrimSpace(stderr.String()))
		}
		s.log.Warn().
			Err(waitErr).
			Str("path", path).
			Int("frames", len(frames)).
			Msg("decoder stopped early, keeping frames decoded so far")
	}

	s.log.Debug().
		Str("path", path).
		Str("codec", info.Codec).
		Int("width", info.Width).
		Int("height", info.Height).
		Int("source_frames", info.FrameCount).
		Dur("duration", info.Duration).
		Float64("source_fps", info.FPS).
		Float64("target_fps", s.rate).
		Int("interval", interval).
		Int("frames", len(frames)).
		Msg("sampled video")
	return frames, nil
}

// sampleRaw reads packed RGBA frames of width x height from r and keeps every
// interval-th frame, starting with the first. A truncated trailing frame is
// dropped.
func sampleRaw(r io.Reader, width, height, interval int) ([]Frame, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", width, height)
	}
	if interval < 1 {
		interval = 1
	}

	frameSize := width * height * 4
	scratch := make([]byte, frameSize)
	var frames []Frame

	for decoded := 0; ; decoded++ {
		keep := decoded%interval == 0
		buf := scratch
		var img *image.RGBA
		if keep {
			img = image.NewRGBA(image.Rect(0, 0, width, height))
			buf = img.Pix
		}
		_, err := io.ReadFull(r, buf)
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return frames, nil
		}
		if err != nil {
			return frames, err
		}
		if keep {
			frames = append(frames, Frame{
				Index:     len(frames),
				Timestamp: float64(len(frames)),
				Image:     img,
			})
		}
	}
}

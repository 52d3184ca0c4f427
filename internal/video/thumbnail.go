package video

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/image/draw"

	"dashcam-service/internal/config"
)

const ThumbnailName = "thumbnail.jpg"

// Thumbnailer grabs a single preview frame from a video.
type Thumbnailer struct {
	tools tools
	at    time.Duration
	width int
	log   zerolog.Logger
}

func NewThumbnailer(cfg config.PipelineConfig, log zerolog.Logger) *Thumbnailer {
	return &Thumbnailer{
		tools: tools{
			ffmpeg:  cfg.FFmpegPath,
			ffprobe: cfg.FFprobePath,
			timeout: cfg.DecodeTimeout,
		},
		at:    cfg.ThumbnailTimestamp,
		width: cfg.ThumbnailWidth,
		log:   log.With().Str("component", "thumbnail").Logger(),
	}
}

// Capture seeks to at and decodes exactly one frame.
func (t *Thumbnailer) Capture(ctx context.Context, path string, at time.Duration) (*image.RGBA, error) {
	info, err := t.tools.probe(ctx, path)
	if err != nil {
		return nil, err
	}
	bin, err := t.tools.lookPath(t.tools.ffmpeg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	ctx, cancel := t.tools.withTimeout(ctx)
	defer cancel()

	args := []string{
		"-v", "error",
		"-nostdin",
		"-noautorotate",
		"-ss", fmt.Sprintf("%.3f", at.Seconds()),
		"-i", path,
		"-map", "0:v:0",
		"-frames:v", "1",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"pipe:1",
	}
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: ffmpeg %s: %v: %s", ErrDecode, path, err, strings.TrimSpace(stderr.String()))
	}

	img := image.NewRGBA(image.Rect(0, 0, info.Width, info.Height))
	if _, err := io.ReadFull(&stdout, img.Pix); err != nil {
		return nil, fmt.Errorf("%w: at %v in %s", ErrFrameRead, at, path)
	}
	return img, nil
}

// Generate captures the configured preview frame and stores it as a JPEG next
// to the video. It returns the thumbnail path.
func (t *Thumbnailer) Generate(ctx context.Context, videoPath string) (string, error) {
	img, err := t.Capture(ctx, videoPath, t.at)
	if err != nil {
		return "", err
	}
	out := filepath.Join(filepath.Dir(videoPath), ThumbnailName)
	if err := WriteJPEG(out, img, t.width); err != nil {
		return "", err
	}
	t.log.Debug().Str("path", out).Msg("wrote thumbnail")
	return out, nil
}

// WriteJPEG scales img down to maxWidth (keeping aspect) and writes it to path.
// A maxWidth of zero keeps the original size.
func WriteJPEG(path string, img image.Image, maxWidth int) error {
	b := img.Bounds()
	if maxWidth > 0 && b.Dx() > maxWidth {
		h := b.Dy() * maxWidth / b.Dx()
		if h < 1 {
			h = 1
		}
		dst := image.NewRGBA(image.Rect(0, 0, maxWidth, h))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
		img = dst
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: 85}); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

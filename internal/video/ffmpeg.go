package video

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

var (
	ErrNotFound  = errors.New("video not found")
	ErrDecode    = errors.New("video cannot be decoded")
	ErrFrameRead = errors.New("no frame could be read")
)

// Info describes the first video stream of a file.
type Info struct {
	Width      int           `json:"width"`
	Height     int           `json:"height"`
	FPS        float64       `json:"fps"`
	FrameCount int           `json:"frame_count"`
	Duration   time.Duration `json:"duration"`
	Codec      string        `json:"codec"`
}

// tools runs ffmpeg and ffprobe with a bounded lifetime per invocation.
type tools struct {
	ffmpeg  string
	ffprobe string
	timeout time.Duration
}

func (t tools) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if t.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, t.timeout)
}

func (t tools) lookPath(name string) (string, error) {
	p, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("unable to find '%v' in your path: %w", name, err)
	}
	return p, nil
}

func statVideo(path string) error {
	st, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return fmt.Errorf("%w: %s: %v", ErrNotFound, path, err)
	}
	if st.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrNotFound, path)
	}
	return nil
}

type probeOutput struct {
	Streams []struct {
		CodecName    string `json:"codec_name"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		RFrameRate   string `json:"r_frame_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
		NbFrames     string `json:"nb_frames"`
		Duration     string `json:"duration"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// probe asks ffprobe for the geometry and rate of the first video stream.
func (t tools) probe(ctx context.Context, path string) (*Info, error) {
	if err := statVideo(path); err != nil {
		return nil, err
	}
	bin, err := t.lookPath(t.ffprobe)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	ctx, cancel := t.withTimeout(ctx)
	defer cancel()

	args := []string{
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=codec_name,width,height,r_frame_rate,avg_frame_rate,nb_frames,duration:format=duration",
		"-of", "json",
		path,
	}
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%w: ffprobe %s: %v: %s", ErrDecode, path, err, strings.TrimSpace(stderr.String()))
	}
	return parseProbe(out)
}

func parseProbe(out []byte) (*Info, error) {
	var p probeOutput
	if err := json.Unmarshal(out, &p); err != nil {
		return nil, fmt.Errorf("%w: unable to parse ffprobe output: %v", ErrDecode, err)
	}
	if len(p.Streams) == 0 {
		return nil, fmt.Errorf("%w: no video stream", ErrDecode)
	}
	s := p.Streams[0]
	if s.Width <= 0 || s.Height <= 0 {
		return nil, fmt.Errorf("%w: invalid frame size %dx%d", ErrDecode, s.Width, s.Height)
	}

	info := &Info{
		Width:  s.Width,
		Height: s.Height,
		Codec:  s.CodecName,
	}
	info.FPS = parseRate(s.AvgFrameRate)
	if info.FPS <= 0 {
		info.FPS = parseRate(s.RFrameRate)
	}

	duration := s.Duration
	if duration == "" || duration == "N/A" {
		duration = p.Format.Duration
	}
	if seconds, err := strconv.ParseFloat(duration, 64); err == nil {
		info.Duration = time.Duration(seconds * float64(time.Second))
	}
	if n, err := strconv.Atoi(s.NbFrames); err == nil {
		info.FrameCount = n
	} else if info.FPS > 0 {
		info.FrameCount = int(info.Duration.Seconds()*info.FPS + 0.5)
	}
	return info, nil
}

// parseRate parses ffprobe rationals such as "30000/1001". Zero means unknown.
func parseRate(s string) float64 {
	num, den, found := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

var ErrNoFrame = errors.New("ffmpeg produced no frame")

var codecs = map[string]string{
	"png":  "png",
	"jpeg": "mjpeg",
	"jpg":  "mjpeg",
	"webp": "libwebp",
}

type Ffmpeg struct {
	ffmpegCmd string
}

func New(cmd string) Ffmpeg {
	if cmd == "" {
		cmd = "ffmpeg"
	}
	return Ffmpeg{ffmpegCmd: cmd}
}

// ExtractFrame grabs a single frame at offset from the media file at input and
// returns it encoded in format.
func (ff Ffmpeg) ExtractFrame(ctx context.Context, input string, offset time.Duration, format string) ([]byte, error) {
	args, err := ff.extractFrameArgs(input, offset, format)
	if err != nil {
		return nil, err
	}

	cmdPath, err := exec.LookPath(ff.ffmpegCmd)
	if err != nil {
		return nil, err
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, cmdPath, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return nil, fmt.Errorf("run ffmpeg: %w", err)
		}
		return nil, fmt.Errorf("run ffmpeg: %w: %s", err, msg)
	}
	if stdout.Len() == 0 {
		return nil, ErrNoFrame
	}

	return stdout.Bytes(), nil
}

func (ff Ffmpeg) extractFrameArgs(input string, offset time.Duration, format string) ([]string, error) {
	codec, ok := codecs[format]
	if !ok {
		return nil, fmt.Errorf("unsupported frame format: %s", format)
	}

	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-i", input,
		"-ss", timestamp(offset),
		"-vframes", "1", // single frame
		"-f", "image2pipe",
		"-vcodec", codec,
		"pipe:1",
	}, nil
}

// timestamp formats d as HH:MM:SS.mmm.
func timestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	d -= s * time.Second
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, d/time.Millisecond)
}

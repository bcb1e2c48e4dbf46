package ffmpeg

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFfmpeg writes a shell script that records its arguments and prints out.
func fakeFfmpeg(t *testing.T, out string, exitCode int) (cmd string, argsFile string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fakes need a POSIX shell")
	}

	dir := t.TempDir()
	argsFile = filepath.Join(dir, "args")
	cmd = filepath.Join(dir, "ffmpeg")

	script := "#!/bin/sh\n" +
		"echo \"$@\" > '" + argsFile + "'\n" +
		"printf '" + out + "'\n" +
		"echo 'ffmpeg says no' >&2\n" +
		"exit " + string(rune('0'+exitCode)) + "\n"
	require.NoError(t, os.WriteFile(cmd, []byte(script), 0o755))

	return cmd, argsFile
}

func TestTimestamp(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{time.Second, "00:00:01.000"},
		{0, "00:00:00.000"},
		{-time.Second, "00:00:00.000"},
		{time.Hour + 2*time.Minute + 3*time.Second + 45*time.Millisecond, "01:02:03.045"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, timestamp(tt.in))
	}
}

func TestExtractFrameArgs(t *testing.T) {
	args, err := New("").extractFrameArgs("/tmp/video.mp4", time.Second, "jpeg")
	require.NoError(t, err)

	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "-i /tmp/video.mp4")
	assert.Contains(t, joined, "-ss 00:00:01.000")
	assert.Contains(t, joined, "-vframes 1")
	assert.Contains(t, joined, "-f image2pipe")
	assert.Contains(t, joined, "-vcodec mjpeg")

	_, err = New("").extractFrameArgs("/tmp/video.mp4", time.Second, "gif")
	assert.Error(t, err)
}

func TestExtractFrame(t *testing.T) {
	cmd, argsFile := fakeFfmpeg(t, "FRAME", 0)

	out, err := New(cmd).ExtractFrame(context.Background(), "/data/clip.mov", time.Second, "png")
	require.NoError(t, err)
	assert.Equal(t, []byte("FRAME"), out)

	recorded, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	assert.Contains(t, string(recorded), "-i /data/clip.mov")
	assert.Contains(t, string(recorded), "-vcodec png")
}

func TestExtractFrame_Failure(t *testing.T) {
	cmd, _ := fakeFfmpeg(t, "", 1)

	_, err := New(cmd).ExtractFrame(context.Background(), "/data/clip.mov", time.Second, "png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ffmpeg says no")
}

func TestExtractFrame_EmptyOutput(t *testing.T) {
	cmd, _ := fakeFfmpeg(t, "", 0)

	_, err := New(cmd).ExtractFrame(context.Background(), "/data/clip.mov", time.Second, "png")
	assert.ErrorIs(t, err, ErrNoFrame)
}

func TestExtractFrame_MissingBinary(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing")).ExtractFrame(context.Background(), "x", 0, "png")
	assert.Error(t, err)
}

package pipeline

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
)

// FFmpegSource opens camera streams by spawning an ffmpeg subprocess that
// transcodes the input into an MJPEG pipe. It handles rtsp://, http(s)://
// and local V4L2 devices.
type FFmpegSource struct {
	// FPS limits the output frame rate. Zero means source rate.
	FPS int
}

// Open starts ffmpeg for the given stream URL. The returned connection is
// failed (and must be reopened) as soon as ffmpeg exits or its pipe breaks.
func (s *FFmpegSource) Open(url string) (StreamConn, error) {
	var args []string
	fps := s.FPS
	if fps <= 0 {
		fps = 15
	}

	switch {
	case strings.HasPrefix(url, "rtsp://"):
		args = []string{
			"-rtsp_transport", "tcp",
			"-i", url,
			"-f", "image2pipe",
			"-vcodec", "mjpeg",
			"-r", fmt.Sprintf("%d", fps),
			"-q:v", "5",
			"-",
		}
	case strings.HasPrefix(url, "http://"), strings.HasPrefix(url, "https://"):
		args = []string{
			"-i", url,
			"-f", "image2pipe",
			"-vcodec", "mjpeg",
			"-r", fmt.Sprintf("%d", fps),
			"-q:v", "5",
			"-",
		}
	default:
		// V4L2 device path.
		args = []string{
			"-f", "v4l2",
			"-framerate", fmt.Sprintf("%d", fps),
			"-i", url,
			"-f", "image2pipe",
			"-vcodec", "mjpeg",
			"-q:v", "5",
			"-",
		}
	}

	cmd := exec.Command("ffmpeg", args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting ffmpeg: %w", err)
	}

	// Drain stderr so ffmpeg never blocks on a full pipe.
	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
		}
	}()

	return &ffmpegConn{cmd: cmd, stdout: stdout}, nil
}

type ffmpegConn struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser

	buf   []byte
	chunk [8192]byte

	closeOnce sync.Once
}

// ReadFrame reads from the MJPEG pipe until a complete JPEG is buffered.
func (c *ffmpegConn) ReadFrame() ([]byte, error) {
	for {
		if frame := extractJPEG(&c.buf); frame != nil {
			return frame, nil
		}

		n, err := c.stdout.Read(c.chunk[:])
		if n > 0 {
			c.buf = append(c.buf, c.chunk[:n]...)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading ffmpeg output: %w", err)
		}
	}
}

func (c *ffmpegConn) Close() error {
	c.closeOnce.Do(func() {
		c.stdout.Close()
		if c.cmd.Process != nil {
			c.cmd.Process.Kill()
		}
		c.cmd.Wait()
	})
	return nil
}

// extractJPEG pulls one complete JPEG (SOI..EOI) out of the buffer,
// consuming it and any junk before it. Returns nil when no complete frame
// is buffered yet.
func extractJPEG(buf *[]byte) []byte {
	b := *buf
	start := bytes.Index(b, []byte{0xFF, 0xD8})
	if start == -1 {
		return nil
	}
	end := bytes.Index(b[start+2:], []byte{0xFF, 0xD9})
	if end == -1 {
		return nil
	}
	end = start + 2 + end + 2

	frame := make([]byte, end-start)
	copy(frame, b[start:end])
	*buf = b[end:]
	return frame
}

package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// ErrFFmpegUnavailable is returned when the ffmpeg binary cannot be found.
var ErrFFmpegUnavailable = errors.New("ffmpeg not available")

// Converter shells out to ffmpeg. In pipe mode audio is streamed through
// stdin/stdout; if that fails and a work dir is given the conversion is
// retried with files inside it.
type Converter struct {
	path     string
	pipeMode bool
	lookErr  error
}

// NewConverter resolves the ffmpeg binary. A missing binary is not fatal;
// every call then fails with ErrFFmpegUnavailable.
func NewConverter(ffmpegPath string, pipeMode bool) *Converter {
	ffmpegPath = strings.TrimSpace(ffmpegPath)
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	resolved, err := exec.LookPath(ffmpegPath)
	if err != nil {
		return &Converter{path: ffmpegPath, pipeMode: pipeMode, lookErr: fmt.Errorf("%w: %s", ErrFFmpegUnavailable, ffmpegPath)}
	}
	return &Converter{path: resolved, pipeMode: pipeMode}
}

// Available reports whether ffmpeg was found.
func (c *Converter) Available() bool { return c.lookErr == nil }

// ToWAV transcodes any ffmpeg-readable container into PCM16LE mono 16 kHz WAV.
func (c *Converter) ToWAV(ctx context.Context, src []byte, workDir string) ([]byte, error) {
	if c.lookErr != nil {
		return nil, c.lookErr
	}
	if len(src) == 0 {
		return nil, errors.New("ffmpeg: empty input")
	}

	rate := strconv.Itoa(RecognitionSampleRate)
	channels := strconv.Itoa(RecognitionChannels)

	if c.pipeMode {
		pcm, err := c.run(ctx, src, "-i", "pipe:0", "-f", "s16le", "-acodec", "pcm_s16le", "-ar", rate, "-ac", channels, "pipe:1")
		if err == nil {
			return EncodeWAVPCM16LE(pcm, RecognitionSampleRate, RecognitionChannels)
		}
		if workDir == "" || ctx.Err() != nil {
			return nil, err
		}
	}
	if workDir == "" {
		return nil, errors.New("ffmpeg: file mode needs a work dir")
	}

	in := filepath.Join(workDir, "source")
	out := filepath.Join(workDir, "converted.wav")
	if err := os.WriteFile(in, src, 0o600); err != nil {
		return nil, fmt.Errorf("write ffmpeg input: %w", err)
	}
	if _, err := c.run(ctx, nil, "-i", in, "-acodec", "pcm_s16le", "-ar", rate, "-ac", channels, "-bitexact", out); err != nil {
		return nil, err
	}
	return os.ReadFile(out)
}

// Tempo speeds audio up by factor with the atempo filter, keeping MP3 output.
func (c *Converter) Tempo(ctx context.Context, src []byte, factor float64, workDir string) ([]byte, error) {
	if c.lookErr != nil {
		return nil, c.lookErr
	}
	if len(src) == 0 {
		return nil, errors.New("ffmpeg: empty input")
	}
	filter := "atempo=" + strconv.FormatFloat(factor, 'f', -1, 64)

	if c.pipeMode {
		out, err := c.run(ctx, src, "-i", "pipe:0", "-filter:a", filter, "-vn", "-f", "mp3", "pipe:1")
		if err == nil {
			return out, nil
		}
		if workDir == "" || ctx.Err() != nil {
			return nil, err
		}
	}
	if workDir == "" {
		return nil, errors.New("ffmpeg: file mode needs a work dir")
	}

	in := filepath.Join(workDir, "speech.mp3")
	out := filepath.Join(workDir, "speech_fast.mp3")
	if err := os.WriteFile(in, src, 0o600); err != nil {
		return nil, fmt.Errorf("write ffmpeg input: %w", err)
	}
	if _, err := c.run(ctx, nil, "-i", in, "-filter:a", filter, "-vn", out); err != nil {
		return nil, err
	}
	return os.ReadFile(out)
}

func (c *Converter) run(ctx context.Context, stdin []byte, args ...string) ([]byte, error) {
	full := append([]string{"-y", "-hide_banner", "-loglevel", "error"}, args...)
	cmd := exec.CommandContext(ctx, c.path, full...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	var stdout bytes.Buffer
	stderr := newTailBuffer(4 << 10)
	cmd.Stdout = &stdout
	cmd.Stderr = stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		detail := stderr.String()
		if detail == "" {
			detail = err.Error()
		}
		return nil, fmt.Errorf("ffmpeg failed: %s", detail)
	}
	return stdout.Bytes(), nil
}

type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func newTailBuffer(max int) *tailBuffer {
	if max <= 0 {
		max = 16 << 10
	}
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.max {
		t.buf = t.buf[len(t.buf)-t.max:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}

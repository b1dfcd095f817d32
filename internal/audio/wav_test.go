package audio

import (
	"context"
	"errors"
	"testing"
)

func TestEncodeWAVRoundTripsHeader(t *testing.T) {
	pcm := make([]byte, 320)
	wav, err := EncodeWAVPCM16LE(pcm, 16000, 1)
	if err != nil {
		t.Fatalf("EncodeWAVPCM16LE() error = %v", err)
	}
	if len(wav) != 44+len(pcm) {
		t.Fatalf("len(wav) = %d, want %d", len(wav), 44+len(pcm))
	}
	info, err := ParseWAVHeader(wav)
	if err != nil {
		t.Fatalf("ParseWAVHeader() error = %v", err)
	}
	if info.SampleRate != 16000 || info.Channels != 1 || info.DataBytes != len(pcm) {
		t.Fatalf("ParseWAVHeader() = %+v", info)
	}
}

func TestEncodeWAVDefaults(t *testing.T) {
	wav, err := EncodeWAVPCM16LE(nil, 0, 0)
	if err != nil {
		t.Fatalf("EncodeWAVPCM16LE() error = %v", err)
	}
	info, err := ParseWAVHeader(wav)
	if err != nil {
		t.Fatalf("ParseWAVHeader() error = %v", err)
	}
	if info.SampleRate != RecognitionSampleRate || info.Channels != RecognitionChannels || info.DataBytes != 0 {
		t.Fatalf("ParseWAVHeader() = %+v, want recognition defaults", info)
	}
}

func TestParseWAVHeaderRejectsGarbage(t *testing.T) {
	if _, err := ParseWAVHeader([]byte("short")); err == nil {
		t.Fatalf("ParseWAVHeader(short) error = nil")
	}
	garbage := make([]byte, 64)
	if _, err := ParseWAVHeader(garbage); err == nil {
		t.Fatalf("ParseWAVHeader(zeros) error = nil")
	}
}

func TestConverterMissingBinary(t *testing.T) {
	c := NewConverter("/nonexistent/ffmpeg-binary", true)
	if c.Available() {
		t.Fatalf("Available() = true for missing binary")
	}
	_, err := c.ToWAV(context.Background(), []byte("x"), t.TempDir())
	if !errors.Is(err, ErrFFmpegUnavailable) {
		t.Fatalf("ToWAV() error = %v, want ErrFFmpegUnavailable", err)
	}
	_, err = c.Tempo(context.Background(), []byte("x"), 1.5, "")
	if !errors.Is(err, ErrFFmpegUnavailable) {
		t.Fatalf("Tempo() error = %v, want ErrFFmpegUnavailable", err)
	}
}

func TestTailBufferKeepsTail(t *testing.T) {
	b := newTailBuffer(4)
	_, _ = b.Write([]byte("abcdef"))
	if got := b.String(); got != "cdef" {
		t.Fatalf("tail = %q, want %q", got, "cdef")
	}
}

package audio

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

// Fixed PCM layout the recognizers are fed with.
const (
	RecognitionSampleRate = 16000
	RecognitionChannels   = 1
)

var errShortWAV = errors.New("wav: payload shorter than header")

// EncodeWAVPCM16LE wraps raw PCM16LE audio bytes in a WAV container.
func EncodeWAVPCM16LE(pcm []byte, sampleRate, channels int) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(44 + len(pcm))
	if err := WriteWAVPCM16LETo(&buf, pcm, sampleRate, channels); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteWAVPCM16LETo writes raw PCM16LE audio bytes to out as a WAV stream.
func WriteWAVPCM16LETo(out io.Writer, pcm []byte, sampleRate, channels int) error {
	const (
		bitsPerSample = 16
		audioFormat   = 1 // PCM
	)
	if sampleRate <= 0 {
		sampleRate = RecognitionSampleRate
	}
	if channels <= 0 {
		channels = RecognitionChannels
	}

	dataSize := uint32(len(pcm))
	byteRate := uint32(sampleRate * channels * bitsPerSample / 8)
	blockAlign := uint16(channels * bitsPerSample / 8)

	w := bufio.NewWriter(out)

	// RIFF header.
	if _, err := w.WriteString("RIFF"); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(36)+dataSize); err != nil {
		return err
	}
	if _, err := w.WriteString("WAVE"); err != nil {
		return err
	}

	// fmt chunk.
	if _, err := w.WriteString("fmt "); err != nil {
		return err
	}
	fields := []any{
		uint32(16),
		uint16(audioFormat),
		uint16(channels),
		uint32(sampleRate),
		byteRate,
		blockAlign,
		uint16(bitsPerSample),
	}
	for _, f := range fields {
		if err := binary.Write(w, binary.LittleEndian, f); err != nil {
			return err
		}
	}

	// data chunk.
	if _, err := w.WriteString("data"); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, dataSize); err != nil {
		return err
	}
	if _, err := w.Write(pcm); err != nil {
		return err
	}
	return w.Flush()
}

// WAVInfo is the subset of a canonical WAV header callers care about.
type WAVInfo struct {
	SampleRate int
	Channels   int
	DataBytes  int
}

// ParseWAVHeader reads the canonical 44-byte header written by ffmpeg and
// EncodeWAVPCM16LE.
func ParseWAVHeader(b []byte) (WAVInfo, error) {
	if len(b) < 44 {
		return WAVInfo{}, errShortWAV
	}
	if string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" {
		return WAVInfo{}, errors.New("wav: missing RIFF/WAVE magic")
	}
	return WAVInfo{
		Channels:   int(binary.LittleEndian.Uint16(b[22:24])),
		SampleRate: int(binary.LittleEndian.Uint32(b[24:28])),
		DataBytes:  int(binary.LittleEndian.Uint32(b[40:44])),
	}, nil
}

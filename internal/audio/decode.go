// Package audio decodes answer recordings and stages them for the duration of
// a single evaluation call.
package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
)

// DefaultSampleRate is the rate the primary model expects.
const DefaultSampleRate = 16000

var (
	ErrEmptyAudio        = errors.New("empty audio")
	ErrUnsupportedFormat = errors.New("unsupported audio format")
)

// Sample is a decoded mono waveform normalized to [-1, 1].
type Sample struct {
	Data       []float32
	SampleRate int
}

func (s *Sample) Duration() time.Duration {
	if s == nil || s.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(s.Data)) * time.Second / time.Duration(s.SampleRate)
}

// Format identifies the container of an encoded blob.
type Format string

const (
	FormatUnknown Format = ""
	FormatWAV     Format = "wav"
	FormatMP3     Format = "mp3"
)

// SniffFormat inspects the leading bytes of an encoded blob.
func SniffFormat(blob []byte) Format {
	switch {
	case len(blob) >= 12 && string(blob[0:4]) == "RIFF" && string(blob[8:12]) == "WAVE":
		return FormatWAV
	case len(blob) >= 3 && string(blob[0:3]) == "ID3":
		return FormatMP3
	case len(blob) >= 2 && blob[0] == 0xFF && blob[1]&0xE0 == 0xE0:
		return FormatMP3
	default:
		return FormatUnknown
	}
}

// Decode converts an encoded WAV or MP3 blob into a mono sample at targetRate.
func Decode(blob []byte, targetRate int) (*Sample, error) {
	if len(blob) == 0 {
		return nil, ErrEmptyAudio
	}
	if targetRate <= 0 {
		targetRate = DefaultSampleRate
	}

	var (
		mono []float32
		rate int
		err  error
	)
	switch SniffFormat(blob) {
	case FormatWAV:
		mono, rate, err = decodeWAV(blob)
	case FormatMP3:
		mono, rate, err = decodeMP3(blob)
	default:
		return nil, ErrUnsupportedFormat
	}
	if err != nil {
		return nil, err
	}
	if len(mono) == 0 {
		return nil, ErrEmptyAudio
	}
	return &Sample{Data: Resample(mono, rate, targetRate), SampleRate: targetRate}, nil
}

func decodeWAV(blob []byte) ([]float32, int, error) {
	dec := wav.NewDecoder(bytes.NewReader(blob))
	if !dec.IsValidFile() {
		return nil, 0, fmt.Errorf("decode wav: invalid container")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("decode wav: %w", err)
	}
	if buf == nil || buf.Format == nil || buf.Format.NumChannels <= 0 {
		return nil, 0, fmt.Errorf("decode wav: missing format")
	}

	depth := int(dec.BitDepth)
	if depth <= 0 || depth > 32 {
		return nil, 0, fmt.Errorf("decode wav: unsupported bit depth %d", depth)
	}
	scale := float32(int64(1) << (depth - 1))
	channels := buf.Format.NumChannels

	frames := len(buf.Data) / channels
	mono := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			v := buf.Data[i*channels+c]
			if depth == 8 {
				// 8-bit WAV is unsigned.
				v -= 128
			}
			sum += float32(v) / scale
		}
		mono[i] = sum / float32(channels)
	}
	return mono, buf.Format.SampleRate, nil
}

func decodeMP3(blob []byte) ([]float32, int, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(blob))
	if err != nil {
		return nil, 0, fmt.Errorf("decode mp3: %w", err)
	}
	pcm, err := io.ReadAll(dec)
	if err != nil {
		return nil, 0, fmt.Errorf("decode mp3: %w", err)
	}

	// go-mp3 always yields interleaved stereo PCM16LE.
	frames := len(pcm) / 4
	mono := make([]float32, frames)
	for i := 0; i < frames; i++ {
		l := int16(binary.LittleEndian.Uint16(pcm[4*i:]))
		r := int16(binary.LittleEndian.Uint16(pcm[4*i+2:]))
		mono[i] = (float32(l) + float32(r)) / 2 / 32768
	}
	return mono, dec.SampleRate(), nil
}

// Resample converts samples between rates with linear interpolation.
func Resample(in []float32, from, to int) []float32 {
	if from == to || from <= 0 || to <= 0 || len(in) == 0 {
		return in
	}
	n := int(int64(len(in)) * int64(to) / int64(from))
	if n == 0 {
		n = 1
	}
	out := make([]float32, n)
	ratio := float64(from) / float64(to)
	last := len(in) - 1
	for i := range out {
		pos := float64(i) * ratio
		j := int(pos)
		if j >= last {
			out[i] = in[last]
			continue
		}
		frac := float32(pos - float64(j))
		out[i] = in[j] + (in[j+1]-in[j])*frac
	}
	return out
}

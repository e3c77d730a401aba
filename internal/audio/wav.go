package audio

import (
	"errors"
	"io"
	"math"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// EncodeSampleWAV renders a decoded sample as a 16-bit mono WAV file, the
// form multimodal model endpoints accept for inline audio.
func EncodeSampleWAV(s *Sample) ([]byte, error) {
	if s == nil {
		return nil, ErrEmptyAudio
	}
	rate := s.SampleRate
	if rate <= 0 {
		rate = DefaultSampleRate
	}

	data := make([]int, len(s.Data))
	for i, v := range s.Data {
		f := math.Max(-1, math.Min(1, float64(v)))
		data[i] = int(math.Round(f * math.MaxInt16))
	}

	out := &seekBuffer{}
	enc := wav.NewEncoder(out, rate, 16, 1, 1)
	err := enc.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: rate},
		Data:           data,
		SourceBitDepth: 16,
	})
	if err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return out.buf, nil
}

// seekBuffer is an in-memory io.WriteSeeker; the wav encoder seeks back to
// patch chunk sizes on Close.
type seekBuffer struct {
	buf []byte
	pos int
}

func (b *seekBuffer) Write(p []byte) (int, error) {
	if end := b.pos + len(p); end > len(b.buf) {
		b.buf = append(b.buf, make([]byte, end-len(b.buf))...)
	}
	n := copy(b.buf[b.pos:], p)
	b.pos += n
	return n, nil
}

func (b *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = int64(b.pos) + offset
	case io.SeekEnd:
		next = int64(len(b.buf)) + offset
	default:
		return 0, errors.New("seek: invalid whence")
	}
	if next < 0 {
		return 0, errors.New("seek: negative position")
	}
	b.pos = int(next)
	return next, nil
}

package audio

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func sineWAV(t *testing.T, sampleRate int, seconds float64) []byte {
	t.Helper()
	n := int(float64(sampleRate) * seconds)
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = float32(0.5 * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate)))
	}
	blob, err := EncodeSampleWAV(&Sample{Data: samples, SampleRate: sampleRate})
	if err != nil {
		t.Fatalf("EncodeSampleWAV() error = %v", err)
	}
	return blob
}

func TestDecodeWAVResamplesToTarget(t *testing.T) {
	blob := sineWAV(t, 48000, 0.5)

	sample, err := Decode(blob, 16000)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if sample.SampleRate != 16000 {
		t.Fatalf("SampleRate = %d, want 16000", sample.SampleRate)
	}
	if len(sample.Data) != 8000 {
		t.Fatalf("len(Data) = %d, want 8000", len(sample.Data))
	}
	var peak float32
	for _, v := range sample.Data {
		if v > peak {
			peak = v
		}
	}
	if peak < 0.45 || peak > 0.55 {
		t.Fatalf("peak = %v, want ~0.5", peak)
	}
}

func TestEncodeSampleWAVRoundTrip(t *testing.T) {
	in := &Sample{Data: []float32{0, 0.25, -0.5, 1.5}, SampleRate: 16000}
	blob, err := EncodeSampleWAV(in)
	if err != nil {
		t.Fatalf("EncodeSampleWAV() error = %v", err)
	}
	if SniffFormat(blob) != FormatWAV {
		t.Fatalf("SniffFormat() = %q, want wav", SniffFormat(blob))
	}

	out, err := Decode(blob, 16000)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(out.Data) != len(in.Data) {
		t.Fatalf("len(Data) = %d, want %d", len(out.Data), len(in.Data))
	}
	// 1.5 clips to full scale.
	want := []float32{0, 0.25, -0.5, 1}
	for i, v := range out.Data {
		if math.Abs(float64(v-want[i])) > 0.001 {
			t.Fatalf("Data[%d] = %v, want %v", i, v, want[i])
		}
	}
}

func TestDecodeRejectsUnknownAndEmpty(t *testing.T) {
	if _, err := Decode(nil, 16000); !errors.Is(err, ErrEmptyAudio) {
		t.Fatalf("Decode(nil) error = %v, want ErrEmptyAudio", err)
	}
	if _, err := Decode([]byte("definitely not audio"), 16000); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("Decode(garbage) error = %v, want ErrUnsupportedFormat", err)
	}
	truncated := sineWAV(t, 16000, 0.1)[:20]
	if _, err := Decode(truncated, 16000); err == nil {
		t.Fatalf("Decode(truncated wav) expected error")
	}
}

func TestSniffFormat(t *testing.T) {
	cases := []struct {
		blob []byte
		want Format
	}{
		{sineWAV(t, 16000, 0.01), FormatWAV},
		{[]byte("ID3\x04\x00rest"), FormatMP3},
		{[]byte{0xFF, 0xFB, 0x90, 0x00}, FormatMP3},
		{[]byte("OggS"), FormatUnknown},
	}
	for _, tc := range cases {
		if got := SniffFormat(tc.blob); got != tc.want {
			t.Fatalf("SniffFormat(%q) = %q, want %q", tc.blob[:4], got, tc.want)
		}
	}
}

func TestResampleIdentityAndLength(t *testing.T) {
	in := []float32{0, 1, 0, -1}
	if got := Resample(in, 16000, 16000); len(got) != len(in) {
		t.Fatalf("identity len = %d, want %d", len(got), len(in))
	}
	up := Resample(in, 8000, 16000)
	if len(up) != 8 {
		t.Fatalf("upsample len = %d, want 8", len(up))
	}
	if up[1] != 0.5 {
		t.Fatalf("interpolated value = %v, want 0.5", up[1])
	}
}

func TestResourcePathIsRemovedOnRelease(t *testing.T) {
	dir := t.TempDir()
	blob := sineWAV(t, 16000, 0.1)
	res := NewResource(blob, dir)

	path, err := res.Path()
	if err != nil {
		t.Fatalf("Path() error = %v", err)
	}
	if filepath.Ext(path) != ".wav" {
		t.Fatalf("Path() ext = %q, want .wav", filepath.Ext(path))
	}
	onDisk, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !bytes.Equal(onDisk, blob) {
		t.Fatalf("temp file content mismatch")
	}
	again, _ := res.Path()
	if again != path {
		t.Fatalf("second Path() = %q, want %q", again, path)
	}

	if err := res.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("temp file still present after Release: %v", err)
	}
	if res.Bytes() != nil {
		t.Fatalf("Bytes() should be nil after Release")
	}
	if _, err := res.Path(); !errors.Is(err, ErrReleased) {
		t.Fatalf("Path() after Release error = %v, want ErrReleased", err)
	}
	if err := res.Release(); err != nil {
		t.Fatalf("second Release() error = %v", err)
	}
}

func TestResourceCopiesInput(t *testing.T) {
	blob := []byte("RIFFxxxxWAVE")
	res := NewResource(blob, t.TempDir())
	blob[0] = 'X'
	if string(res.Bytes()[:4]) != "RIFF" {
		t.Fatalf("resource aliased caller buffer")
	}
}

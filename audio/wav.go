package audio

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cwbudde/wav"
	goaudio "github.com/go-audio/audio"
)

// LoadWAV reads a WAV file, keeping all channels.
func LoadWAV(path string) (*Signal, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	s, err := ReadWAV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// DecodeWAV reads a WAV image held in memory.
func DecodeWAV(data []byte) (*Signal, error) {
	return ReadWAV(bytes.NewReader(data))
}

// ReadWAV decodes a WAV stream.
func ReadWAV(r io.ReadSeeker) (*Signal, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("invalid wav file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, err
	}
	if buf == nil || buf.Format == nil || buf.Format.NumChannels < 1 {
		return nil, fmt.Errorf("invalid wav buffer")
	}
	out := make([]float64, len(buf.Data))
	for i := range buf.Data {
		out[i] = float64(buf.Data[i])
	}
	return NewInterleaved(out, buf.Format.NumChannels, buf.Format.SampleRate)
}

// SaveWAV writes the signal as 16-bit PCM, creating parent directories.
func SaveWAV(path string, s *Signal) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return WriteWAV(f, s)
}

// WriteWAV encodes the signal as 16-bit PCM.
func WriteWAV(w io.WriteSeeker, s *Signal) error {
	enc := wav.NewEncoder(w, s.SampleRate, 16, s.Channels, 1)
	data := make([]float32, len(s.Samples))
	for i, v := range s.Samples {
		data[i] = float32(v)
	}
	buf := &goaudio.Float32Buffer{
		Format: &goaudio.Format{
			SampleRate:  s.SampleRate,
			NumChannels: s.Channels,
		},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

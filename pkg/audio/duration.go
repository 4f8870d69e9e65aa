// Package audio measures, converts and writes the audio files SafeSound
// transcribes.
package audio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
)

// ErrUnsupportedFormat is returned for containers Duration cannot read.
// Such files are converted to WAV first.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// Duration returns the playing time of a WAV or MP3 file.
func Duration(path string) (time.Duration, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav", ".wave":
		return wavDuration(path)
	case ".mp3":
		return mp3Duration(path)
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

func wavDuration(path string) (time.Duration, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open WAV file: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return 0, fmt.Errorf("invalid WAV file: %s", path)
	}

	d, err := dec.Duration()
	if err != nil {
		return 0, fmt.Errorf("failed to read WAV duration: %w", err)
	}
	return d, nil
}

func mp3Duration(path string) (time.Duration, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open MP3 file: %w", err)
	}
	defer f.Close()

	dec, err := mp3.NewDecoder(f)
	if err != nil {
		return 0, fmt.Errorf("failed to create MP3 decoder: %w", err)
	}

	// go-mp3 always decodes to 16-bit stereo: 4 bytes per sample frame.
	length := dec.Length()
	if length < 0 || dec.SampleRate() == 0 {
		return 0, fmt.Errorf("unknown MP3 length: %s", path)
	}
	samples := length / 4
	return time.Duration(float64(samples) / float64(dec.SampleRate()) * float64(time.Second)), nil
}

func wavFormat(path string) (sampleRate, channels, bitDepth int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, 0, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	dec.ReadInfo()
	if dec.Err() != nil {
		return 0, 0, 0, dec.Err()
	}
	if !dec.IsValidFile() {
		return 0, 0, 0, fmt.Errorf("invalid WAV file: %s", path)
	}
	return int(dec.SampleRate), int(dec.NumChans), int(dec.BitDepth), nil
}

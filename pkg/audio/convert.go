package audio

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/soypete/safesound/pkg/platform"
)

// Converter turns any container ffmpeg understands into the 16 kHz mono
// 16-bit WAV whisper.cpp expects.
type Converter struct {
	FFmpegPath string
}

// NewConverter creates a converter using the given ffmpeg binary.
func NewConverter(ffmpegPath string) *Converter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Converter{FFmpegPath: ffmpegPath}
}

// Available reports whether the ffmpeg binary can be found.
func (c *Converter) Available() bool {
	_, err := exec.LookPath(c.FFmpegPath)
	return err == nil
}

// ToWav converts inputPath and writes the result to outputPath.
func (c *Converter) ToWav(ctx context.Context, inputPath, outputPath string) error {
	if !c.Available() {
		return fmt.Errorf("ffmpeg not found at %q (%s)", c.FFmpegPath, platform.InstallHint(platform.Current(), "ffmpeg"))
	}

	// -ar 16000: whisper expects 16kHz
	// -ac 1: mono
	// -c:a pcm_s16le: 16-bit PCM
	cmd := exec.CommandContext(ctx, c.FFmpegPath,
		"-y",
		"-i", inputPath,
		"-ar", "16000",
		"-ac", "1",
		"-c:a", "pcm_s16le",
		outputPath,
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg conversion failed: %w\nstderr: %s", err, stderr.String())
	}
	return nil
}

// NeedsConversion reports whether a file must be converted before
// whisper.cpp can read it. WAV files already at 16 kHz mono 16-bit pass
// through; unreadable WAV files are left for the backend to reject.
func NeedsConversion(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav", ".wave":
		rate, channels, bits, err := wavFormat(path)
		if err != nil {
			return false
		}
		return rate != 16000 || channels != 1 || bits != 16
	default:
		// mp3, m4a, ogg, webm all need conversion
		return true
	}
}

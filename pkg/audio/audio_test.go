package audio

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func silence(samples int) []byte {
	return make([]byte, samples*2)
}

func TestWritePCM16WAV_Duration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mic.wav")

	require.NoError(t, WritePCM16WAV(path, silence(16000*2), 16000, 1))

	d, err := Duration(path)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, d.Seconds(), 0.01)
}

func TestWritePCM16WAV_Stereo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stereo.wav")

	// one second of 48 kHz stereo
	require.NoError(t, WritePCM16WAV(path, silence(48000*2), 48000, 2))

	d, err := Duration(path)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, d.Seconds(), 0.01)
}

func TestWritePCM16WAV_InvalidInput(t *testing.T) {
	dir := t.TempDir()

	assert.Error(t, WritePCM16WAV(filepath.Join(dir, "a.wav"), []byte{1, 2, 3}, 16000, 1))
	assert.Error(t, WritePCM16WAV(filepath.Join(dir, "b.wav"), silence(10), 0, 1))
}

func TestDuration_UnsupportedFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.m4a")
	require.NoError(t, os.WriteFile(path, []byte("not really audio"), 0644))

	_, err := Duration(path)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestDuration_InvalidWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.wav")
	require.NoError(t, os.WriteFile(path, []byte("RIFF?"), 0644))

	_, err := Duration(path)
	assert.Error(t, err)
}

func TestNeedsConversion(t *testing.T) {
	tests := map[string]bool{
		"a.wav":  false,
		"a.WAV":  false,
		"a.mp3":  true,
		"a.m4a":  true,
		"a.ogg":  true,
		"a.webm": true,
	}
	for name, want := range tests {
		assert.Equal(t, want, NeedsConversion(name), name)
	}
}

func TestNeedsConversion_WavFormat(t *testing.T) {
	dir := t.TempDir()
	pcm := make([]byte, 3200)

	ready := filepath.Join(dir, "ready.wav")
	require.NoError(t, WritePCM16WAV(ready, pcm, 16000, 1))
	assert.False(t, NeedsConversion(ready))

	browser := filepath.Join(dir, "browser.wav")
	require.NoError(t, WritePCM16WAV(browser, pcm, 48000, 1))
	assert.True(t, NeedsConversion(browser))

	stereo := filepath.Join(dir, "stereo.wav")
	require.NoError(t, WritePCM16WAV(stereo, pcm, 16000, 2))
	assert.True(t, NeedsConversion(stereo))
}

func TestConverter_MissingFFmpeg(t *testing.T) {
	c := NewConverter("safesound-no-such-ffmpeg")
	assert.False(t, c.Available())

	err := c.ToWav(context.Background(), "in.ogg", "out.wav")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ffmpeg not found")
}

func TestComputeStats(t *testing.T) {
	stats := ComputeStats(90*time.Second, "  the quick brown\nfox jumps  ")

	assert.Equal(t, 5, stats.WordCount)
	assert.InDelta(t, 90.0, stats.DurationSeconds, 1e-9)
	assert.InDelta(t, 5/1.5, stats.SpeakingRate, 1e-9)
	assert.Equal(t, "1.50", stats.DurationMinutes().StringFixed(2))
	assert.Equal(t, "3.3", stats.Rate().StringFixed(1))
}

func TestComputeStats_ZeroDuration(t *testing.T) {
	stats := ComputeStats(0, "hello world")

	assert.Equal(t, 2, stats.WordCount)
	assert.Zero(t, stats.SpeakingRate)
}

func TestStats_Display(t *testing.T) {
	stats := ComputeStats(2*time.Minute, "one two three four five six")

	assert.Equal(t, map[string]string{
		"duration":      "2.00 mins",
		"word_count":    "6",
		"speaking_rate": "3.0 wpm",
	}, stats.Display())
}

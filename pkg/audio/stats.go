package audio

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Stats summarizes a transcribed recording.
type Stats struct {
	DurationSeconds float64 `json:"duration_seconds"`
	WordCount       int     `json:"word_count"`
	// SpeakingRate is in words per minute.
	SpeakingRate float64 `json:"speaking_rate"`
}

// ComputeStats derives word count and speaking rate from a duration and the
// transcription. A zero duration yields a zero rate.
func ComputeStats(duration time.Duration, transcription string) Stats {
	seconds := duration.Seconds()
	words := len(strings.Fields(transcription))

	var rate float64
	if seconds > 0 {
		rate = float64(words) / (seconds / 60)
	}

	return Stats{
		DurationSeconds: seconds,
		WordCount:       words,
		SpeakingRate:    rate,
	}
}

// DurationMinutes returns the duration in minutes rounded to two decimals.
func (s Stats) DurationMinutes() decimal.Decimal {
	return decimal.NewFromFloat(s.DurationSeconds).Div(decimal.NewFromInt(60)).Round(2)
}

// Rate returns the speaking rate rounded to one decimal.
func (s Stats) Rate() decimal.Decimal {
	return decimal.NewFromFloat(s.SpeakingRate).Round(1)
}

// Display returns the three metrics formatted for the results panel.
func (s Stats) Display() map[string]string {
	return map[string]string{
		"duration":      s.DurationMinutes().StringFixed(2) + " mins",
		"word_count":    decimal.NewFromInt(int64(s.WordCount)).String(),
		"speaking_rate": s.Rate().StringFixed(1) + " wpm",
	}
}

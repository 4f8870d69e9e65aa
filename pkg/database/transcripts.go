package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when no stored transcription matches.
var ErrNotFound = errors.New("transcription not found")

// Transcript is one stored transcription.
type Transcript struct {
	ID              string
	AudioHash       string
	Source          string // "upload" or "microphone"
	FileName        string
	Model           string
	Language        string
	Task            string
	Text            string
	DurationSeconds decimal.Decimal
	WordCount       int
	SpeakingRate    decimal.Decimal
	CreatedAt       time.Time
}

// CacheKey identifies transcriptions that produce the same text.
type CacheKey struct {
	AudioHash string
	Model     string
	Language  string
	Task      string
}

// TranscriptStore persists transcription history.
type TranscriptStore struct {
	db *DB
}

// NewTranscriptStore creates a store on a migrated database.
func NewTranscriptStore(db *DB) *TranscriptStore {
	return &TranscriptStore{db: db}
}

// Save inserts a transcription, replacing any row with the same cache key.
func (s *TranscriptStore) Save(ctx context.Context, t *Transcript) error {
	if t.ID == "" {
		t.ID = NewUUID()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO transcriptions (id, audio_hash, source, file_name, model, language, task, text, duration_seconds, word_count, speaking_rate, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (audio_hash, model, language, task) DO UPDATE SET
			source = excluded.source,
			file_name = excluded.file_name,
			text = excluded.text,
			duration_seconds = excluded.duration_seconds,
			word_count = excluded.word_count,
			speaking_rate = excluded.speaking_rate,
			created_at = excluded.created_at
	`

	_, err := s.db.ExecContext(ctx, query,
		t.ID, t.AudioHash, t.Source, t.FileName, t.Model, t.Language, t.Task, t.Text,
		t.DurationSeconds.String(), t.WordCount, t.SpeakingRate.String(), t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save transcription: %w", err)
	}
	return nil
}

// FindByHash returns the stored transcription for a cache key.
func (s *TranscriptStore) FindByHash(ctx context.Context, key CacheKey) (*Transcript, error) {
	query := `
		SELECT id, audio_hash, source, file_name, model, language, task, text, duration_seconds, word_count, speaking_rate, created_at
		FROM transcriptions
		WHERE audio_hash = $1 AND model = $2 AND language = $3 AND task = $4
	`
	row := s.db.QueryRowContext(ctx, query, key.AudioHash, key.Model, key.Language, key.Task)

	t, err := scanTranscript(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find transcription: %w", err)
	}
	return t, nil
}

// Recent returns up to limit transcriptions, newest first.
func (s *TranscriptStore) Recent(ctx context.Context, limit int) ([]Transcript, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, audio_hash, source, file_name, model, language, task, text, duration_seconds, word_count, speaking_rate, created_at
		FROM transcriptions
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transcriptions: %w", err)
	}
	defer rows.Close()

	var result []Transcript
	for rows.Next() {
		t, err := scanTranscript(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transcription: %w", err)
		}
		result = append(result, *t)
	}
	return result, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTranscript(row scanner) (*Transcript, error) {
	var t Transcript
	var duration, rate string

	if err := row.Scan(
		&t.ID, &t.AudioHash, &t.Source, &t.FileName, &t.Model, &t.Language, &t.Task, &t.Text,
		&duration, &t.WordCount, &rate, &t.CreatedAt,
	); err != nil {
		return nil, err
	}

	var err error
	if t.DurationSeconds, err = decimal.NewFromString(duration); err != nil {
		return nil, fmt.Errorf("invalid duration %q: %w", duration, err)
	}
	if t.SpeakingRate, err = decimal.NewFromString(rate); err != nil {
		return nil, fmt.Errorf("invalid speaking rate %q: %w", rate, err)
	}
	return &t, nil
}

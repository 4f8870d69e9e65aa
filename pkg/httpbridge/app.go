package httpbridge

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/soypete/safesound/pkg/app"
	"github.com/soypete/safesound/pkg/audio"
	"github.com/soypete/safesound/pkg/config"
	"github.com/soypete/safesound/pkg/database"
	"github.com/soypete/safesound/pkg/depcheck"
	"github.com/soypete/safesound/pkg/stt"
	"github.com/soypete/safesound/pkg/transcribe"
)

// HistoryLister lists recent transcriptions for the history panel.
type HistoryLister interface {
	Recent(ctx context.Context, limit int) ([]database.Transcript, error)
}

// AppContext holds all the shared dependencies for the HTTP server
type AppContext struct {
	Config      *config.Config
	App         *app.App
	Transcriber stt.Transcriber
	Service     *transcribe.Service
	Checker     *depcheck.Checker
	Database    *database.DB
	History     HistoryLister
	Logger      *slog.Logger
}

// NewAppContext creates the transcriber, the optional history database and
// the pipeline from configuration.
func NewAppContext(ctx context.Context, cfg *config.Config, def *app.App, logger *slog.Logger) (*AppContext, error) {
	transcriber, err := stt.New(cfg.Whisper)
	if err != nil {
		return nil, fmt.Errorf("failed to create transcriber: %w", err)
	}

	appCtx := &AppContext{
		Config:      cfg,
		App:         def,
		Transcriber: transcriber,
		Checker:     depcheck.NewChecker(cfg.Whisper),
		Logger:      logger,
	}

	var history transcribe.History
	if cfg.History.Enabled {
		db, err := database.New(database.ConfigFromHistory(cfg.History))
		if err != nil {
			return nil, fmt.Errorf("failed to open history database: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
		store := database.NewTranscriptStore(db)
		appCtx.Database = db
		appCtx.History = store
		history = store
		logger.Info("Transcription history enabled", "driver", db.Driver())
	}

	appCtx.Service = transcribe.NewService(
		transcriber,
		audio.NewConverter(cfg.Whisper.FFmpegPath),
		history,
		logger,
		transcribe.Options{KeepTempFiles: cfg.Debug.KeepTempFiles},
	)

	return appCtx, nil
}

// Close releases the history database.
func (a *AppContext) Close() error {
	if a.Database != nil {
		return a.Database.Close()
	}
	return nil
}

// Command safesound starts the SafeSound UI server, waits until it is
// healthy, opens the browser and stays attached to the server process.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/gen2brain/beeep"
	"github.com/pkg/browser"
	"github.com/spf13/cobra"

	"github.com/soypete/safesound/pkg/config"
	"github.com/soypete/safesound/pkg/launcher"
	"github.com/soypete/safesound/pkg/logging"
)

const version = "0.1.0"

func main() {
	exitCode := launcher.ExitOK

	rootCmd := &cobra.Command{
		Use:           "safesound",
		Short:         "Launch the SafeSound transcription UI in your browser",
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		Run: func(cmd *cobra.Command, args []string) {
			exitCode = run()
		},
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(launcher.ExitFailure)
	}
	os.Exit(exitCode)
}

func run() (code int) {
	cfg, cfgErr := config.LoadDefault()
	if cfgErr != nil {
		cfg = config.Default()
	}

	logPath := logging.DefaultLogPath()
	if cfg.Launcher.LogFile != "" {
		logPath = logging.ExpandHome(cfg.Launcher.LogFile)
	}

	level := logging.ParseLevel(cfg.Debug.LogLevel)
	logger, closer, err := logging.NewFileLogger(logPath, level, os.Stdout)
	if err != nil {
		logger = logging.New(os.Stdout, level)
		logger.Warn("Could not open log file, logging to stdout only", "path", logPath, "error", err)
	} else {
		defer closer.Close()
	}

	defer func() {
		if r := recover(); r != nil {
			logging.ErrorWithStack(logger, "Error occurred", fmt.Errorf("%v", r))
			code = launcher.ExitFailure
		}
	}()

	if cfgErr != nil {
		logger.Error("Failed to load config", "error", cfgErr)
		return launcher.ExitFailure
	}

	if exe, err := os.Executable(); err == nil {
		logger.Info("Launcher started", "version", version, "executable", exe, "log_file", logPath)
	}

	executable, script, err := launcher.ResolveServer(cfg.Launcher)
	if err != nil {
		logger.Error("Failed to locate server", "error", err)
		notify("SafeSound could not start", err.Error())
		return launcher.ExitFailure
	}
	logger.Info("Server located", "executable", executable, "script", script)

	ctx, stop := launcher.WithSignals(context.Background())
	defer stop()

	opts := launcher.OptionsFromConfig(cfg.Launcher)
	opts.OpenBrowser = openBrowser
	opts.Notify = notify

	sup := launcher.New(opts, logger.With(slog.String("component", "launcher")))
	return sup.Run(ctx, executable, script)
}

func openBrowser(url string) error {
	// Keep the browser helper's own output out of the launcher's stdout.
	browser.Stdout = io.Discard
	browser.Stderr = io.Discard
	return browser.OpenURL(url)
}

func notify(title, message string) error {
	return beeep.Notify(title, message, "")
}

// Command safesound-server serves the SafeSound transcription UI described by
// an app definition file.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/pkg/browser"
	"github.com/spf13/cobra"

	"github.com/soypete/safesound/pkg/app"
	"github.com/soypete/safesound/pkg/config"
	"github.com/soypete/safesound/pkg/httpbridge"
	"github.com/soypete/safesound/pkg/logging"
)

const version = "0.1.0"

type runOptions struct {
	address       string
	port          int
	browserAddr   string
	headless      bool
	theme         string
	configPath    string
	uploadDir     string
	openBrowserFn func(string) error
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "safesound-server",
		Short:         "Serve the SafeSound transcription UI",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(newRunCmd())
	return rootCmd
}

func newRunCmd() *cobra.Command {
	opts := runOptions{openBrowserFn: openBrowser}

	cmd := &cobra.Command{
		Use:   "run <app.yaml>",
		Short: "Serve an app definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.theme != "light" && opts.theme != "dark" {
				return fmt.Errorf("--theme.base must be light or dark, got %q", opts.theme)
			}
			if opts.port < 0 || opts.port > 65535 {
				return fmt.Errorf("--server.port out of range: %d", opts.port)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, args[0], opts, cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.address, "server.address", "localhost", "address to listen on")
	flags.IntVar(&opts.port, "server.port", 8501, "port to listen on")
	flags.StringVar(&opts.browserAddr, "browser.serverAddress", "", "host shown in the browser URL (defaults to --server.address)")
	flags.BoolVar(&opts.headless, "server.headless", false, "do not open a browser")
	flags.StringVar(&opts.theme, "theme.base", "light", "page theme: light or dark")
	flags.StringVar(&opts.configPath, "config", "", "config file (default .safesound.json in cwd or home)")
	flags.StringVar(&opts.uploadDir, "upload-dir", "", "directory for uploaded audio (default a temp dir)")

	return cmd
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	return config.LoadDefault()
}

func run(ctx context.Context, script string, opts runOptions, stdout io.Writer) error {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.New(stdout, logging.ParseLevel(cfg.Debug.LogLevel)).With(slog.String("component", "server"))

	def, err := app.Load(script)
	if err != nil {
		return err
	}

	appCtx, err := httpbridge.NewAppContext(ctx, cfg, def, logger)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	server, err := httpbridge.NewServer(appCtx, httpbridge.Options{
		UploadDir: opts.uploadDir,
		Theme:     opts.theme,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	ln, err := net.Listen("tcp", net.JoinHostPort(opts.address, strconv.Itoa(opts.port)))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(ctx, ln)
	}()

	server.CheckDependencies(ctx)
	server.MarkReady()

	browserAddr := opts.browserAddr
	if browserAddr == "" {
		browserAddr = opts.address
	}
	_, port, _ := net.SplitHostPort(ln.Addr().String())
	url := "http://" + net.JoinHostPort(browserAddr, port)
	logger.Info("SafeSound is ready", "url", url, "app", def.Title, "backend", appCtx.Transcriber.Name())

	if !opts.headless {
		if err := opts.openBrowserFn(url); err != nil {
			logger.Warn("Could not open browser, navigate manually", "url", url, "error", err)
		}
	}

	return <-errCh
}

func openBrowser(url string) error {
	browser.Stdout = io.Discard
	browser.Stderr = io.Discard
	return browser.OpenURL(url)
}

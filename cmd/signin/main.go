// Package main provides the signin CLI, which runs one interactive sign-in in
// an embedded browser window and prints the resulting session as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/entrhq/signin/pkg/browser"
	"github.com/entrhq/signin/pkg/config"
	"github.com/entrhq/signin/pkg/logging"
	"github.com/entrhq/signin/pkg/session"
	"github.com/entrhq/signin/pkg/telemetry"
)

const version = "0.1.0"

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigFile  string
	Driver      string
	Headless    bool
	Timeout     time.Duration
	OutputFile  string
	ShowVersion bool
}

func main() {
	cliConfig := parseFlags()

	if cliConfig.ShowVersion {
		fmt.Printf("signin v%s\n", version)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())

	// Closing the window is the normal way to abort; signals cancel the run too.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nCancelling sign-in...")
		cancel()
	}()

	if err := run(ctx, cliConfig); err != nil {
		cancel()
		log.Printf("Sign-in failed: %v", err)
		os.Exit(1)
	}
	cancel()
}

// parseFlags parses command line flags
func parseFlags() *CLIConfig {
	cliConfig := &CLIConfig{}

	flag.StringVar(&cliConfig.ConfigFile, "config", "signin.yaml", "Path to configuration file (YAML)")
	flag.StringVar(&cliConfig.Driver, "driver", "", "Browser driver: playwright or rod (overrides config)")
	flag.BoolVar(&cliConfig.Headless, "headless", false, "Run the browser without a visible window")
	flag.DurationVar(&cliConfig.Timeout, "timeout", 10*time.Minute, "Overall sign-in timeout (0 disables)")
	flag.StringVar(&cliConfig.OutputFile, "output", "", "Write the session JSON to this file instead of stdout")
	flag.BoolVar(&cliConfig.ShowVersion, "version", false, "Show version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "signin - interactive embedded-browser sign-in\n\n")
		fmt.Fprintf(os.Stderr, "Usage: signin [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  signin -config signin.yaml\n")
		fmt.Fprintf(os.Stderr, "  signin -config signin.yaml -driver rod -output session.json\n\n")
	}

	flag.Parse()
	return cliConfig
}

// run performs one sign-in and writes the session
func run(ctx context.Context, cliConfig *CLIConfig) error {
	cfg, err := loadConfig(cliConfig)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Logging)
	defer logger.Close()

	driver, shutdown, err := newDriver(ctx, cfg.Browser)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdown(); err != nil {
			logger.Warnf("failed to shut down browser driver: %v", err)
		}
	}()

	controller := browser.NewController(driver)
	defer func() {
		if err := controller.Close(); err != nil {
			logger.Warnf("failed to close browser window: %v", err)
		}
	}()

	builder := telemetry.StaticContextBuilder{Context: cfg.Telemetry.Context()}
	events, stopSync, err := startTelemetrySync(ctx, cfg.Telemetry.Sync, builder, logger)
	if err != nil {
		return err
	}
	defer stopSync()

	deps := session.Deps{
		Runner:    controller,
		Telemetry: builder,
		Exchanger: session.NewOAuthExchanger(cfg.OAuth, logger),
		Logger:    logger,
		Retry:     cfg.Retry,
	}
	provider := session.NewLoginProvider(cfg.Login, cfg.Merge, deps)

	if cliConfig.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cliConfig.Timeout)
		defer cancel()
	}

	logger.Infof("Starting sign-in with %s driver at %s", cfg.Browser.Driver, cfg.Login.Target.Host)
	events.Record(telemetry.NewEvent("INTERACT", map[string]any{
		"type": "signin-start", "driver": string(cfg.Browser.Driver),
	}))
	oauthSession, err := provider.Provide(ctx)
	if err != nil {
		events.Record(telemetry.NewEvent("ERROR", map[string]any{"type": "signin", "message": err.Error()}))
		return err
	}
	events.Record(telemetry.NewEvent("INTERACT", map[string]any{"type": "signin-end"}))

	return writeSession(cliConfig.OutputFile, oauthSession)
}

// loadConfig loads the configuration file and applies flag overrides
func loadConfig(cliConfig *CLIConfig) (*config.Config, error) {
	cfg, err := config.Load(cliConfig.ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if cliConfig.Driver != "" {
		cfg.Browser.Driver = config.DriverName(cliConfig.Driver)
	}
	if cliConfig.Headless {
		cfg.Browser.Options.Headless = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg config.LoggingConfig) *logging.Logger {
	if cfg.Verbosity == "quiet" {
		return logging.NewWriterLogger("signin", io.Discard)
	}

	// NewLogger falls back to stderr and has already reported why.
	logger, _ := logging.NewLogger("signin")
	logger.SetVerbose(cfg.Verbose())
	return logger
}

// startTelemetrySync starts the periodic telemetry sync when a collector is
// configured. The returned stop function ends the loop and makes one last
// sync so events recorded at the end of the run are not lost. Without a
// collector events are buffered and dropped.
func startTelemetrySync(ctx context.Context, cfg config.SyncConfig, builder telemetry.ContextBuilder, logger *logging.Logger) (*telemetry.Buffer, func(), error) {
	buffer := &telemetry.Buffer{}
	if !cfg.Enabled() {
		return buffer, func() {}, nil
	}

	syncLogger := logger.With("telemetry")
	syncer := telemetry.NewHTTPSyncer(cfg.URL, builder, buffer, cfg.RetryMax)

	syncCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stats, err := telemetry.NewAutoSync(syncer).Start(syncCtx, cfg.Interval)
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("failed to start telemetry sync: %w", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for stat := range stats {
			if stat.Error != "" {
				syncLogger.Warnf("telemetry sync failed: %s", stat.Error)
				continue
			}
			syncLogger.Debugf("synced %d telemetry events (%d bytes)", stat.SyncedEventCount, stat.SyncedFileSize)
		}
	}()

	stop := func() {
		cancel()
		<-done

		flushCtx, cancelFlush := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancelFlush()
		if _, err := syncer.Sync(flushCtx); err != nil {
			syncLogger.Warnf("final telemetry sync failed: %v", err)
		}
	}
	return buffer, stop, nil
}

// newDriver starts the configured browser driver and returns its shutdown hook
func newDriver(ctx context.Context, cfg config.BrowserConfig) (browser.Driver, func() error, error) {
	switch cfg.Driver {
	case config.DriverRod:
		driver := browser.NewRodDriver(cfg.Options, cfg.ControlURL)
		if err := driver.Start(ctx); err != nil {
			return nil, nil, fmt.Errorf("failed to start rod: %w", err)
		}
		return driver, driver.Shutdown, nil
	default:
		driver := browser.NewPlaywrightDriver(cfg.Options)
		if err := driver.Initialize(); err != nil {
			return nil, nil, fmt.Errorf("failed to start playwright: %w", err)
		}
		return driver, driver.Shutdown, nil
	}
}

// writeSession writes the session JSON to path, or stdout when path is empty
func writeSession(path string, s *session.OAuthSession) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	data = append(data, '\n')

	if path == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	return nil
}

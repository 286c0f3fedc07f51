package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/gen2brain/beeep"
	"github.com/gordonklaus/portaudio"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/mmcmkm/speech-to-text/internal/capture"
	"github.com/mmcmkm/speech-to-text/internal/config"
	"github.com/mmcmkm/speech-to-text/internal/history"
	"github.com/mmcmkm/speech-to-text/internal/metrics"
	"github.com/mmcmkm/speech-to-text/internal/pipeline"
	"github.com/mmcmkm/speech-to-text/internal/server"
	"github.com/mmcmkm/speech-to-text/internal/transcription"
	"github.com/mmcmkm/speech-to-text/internal/ui"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "speech-to-text"
	serviceVersion    = "1.0.0"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	headless := flag.Bool("headless", false, "Capture once, print the transcription and exit")
	copyResult := flag.Bool("copy", false, "Copy successful transcriptions to the clipboard")
	notify := flag.Bool("notify", false, "Show desktop notifications for silence stops and failures")
	listDevices := flag.Bool("devices", false, "List audio input devices and exit")
	clearClips := flag.Bool("clear-clips", false, "Remove all stored clips and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return 1
	}

	logger, closeLog := initLogger(cfg.Logging)
	defer closeLog()

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	clipDir := cfg.Storage.ClipDir
	if clipDir == "" {
		clipDir = capture.DefaultClipDir()
	}
	store, err := capture.NewClipStore(clipDir, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open clip store: %v\n", err)
		return 1
	}

	if *clearClips {
		n := store.Clear()
		store.RemoveDirIfEmpty()
		fmt.Printf("Removed %d clips from %s\n", n, store.Dir())
		return 0
	}

	if err := portaudio.Initialize(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize audio: %v\n", err)
		return 1
	}
	defer portaudio.Terminate()

	if *listDevices {
		names, err := capture.InputDevices()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to list devices: %v\n", err)
			return 1
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return 0
	}

	apiKey, err := cfg.Transcription.ResolveAPIKey()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}

	var hint string
	if cfg.Transcription.VocabularyHintFile != "" {
		hint, err = transcription.LoadVocabularyHint(cfg.Transcription.VocabularyHintFile, cfg.Transcription.HintMaxBytes)
		if err != nil {
			logger.Warn("Vocabulary hint not loaded", slog.String("error", err.Error()))
		}
	}

	logger.Info("Configuration loaded",
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.Int("channels", cfg.Audio.Channels),
		slog.String("device", cfg.Audio.Device),
		slog.Bool("silence_detection", cfg.Silence.Enabled),
		slog.Float64("silence_threshold", cfg.Silence.Threshold),
		slog.Duration("silence_duration", cfg.Silence.GetDuration()),
		slog.String("clip_dir", store.Dir()),
		slog.String("transcription_endpoint", cfg.Transcription.Endpoint),
		slog.String("model", cfg.Transcription.Model),
		slog.String("mode", cfg.Transcription.Mode),
		slog.Int("hint_bytes", len(hint)),
		slog.String("log_level", cfg.Logging.Level),
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	appMetrics := metrics.NewMetrics(registry)

	recorder, err := capture.NewRecorder(capture.Config{
		DeviceName:       cfg.Audio.Device,
		Channels:         cfg.Audio.Channels,
		SampleRate:       cfg.Audio.SampleRate,
		FrameSize:        cfg.Audio.FrameSize,
		SilenceThreshold: cfg.Silence.Threshold,
		SilenceDuration:  cfg.Silence.GetDuration(),
		Retention:        cfg.Storage.GetRetentionDuration(),
	}, capture.PortAudioDevice{}, store, logger)
	if err != nil {
		logger.Error("Failed to create recorder", slog.String("error", err.Error()))
		fmt.Fprintf(os.Stderr, "Failed to create recorder: %v\n", err)
		return 1
	}
	defer func() {
		if err := recorder.Close(); err != nil {
			logger.Error("Error closing recorder", slog.String("error", err.Error()))
		}
	}()

	client, err := transcription.NewClient(transcription.Config{
		Endpoint: cfg.Transcription.Endpoint,
		APIKey:   apiKey,
		Timeout:  cfg.Transcription.GetTimeoutDuration(),
		Model:    cfg.Transcription.Model,
		Mode:     transcription.Mode(cfg.Transcription.Mode),
	}, logger, appMetrics)
	if err != nil {
		logger.Error("Failed to create transcription client", slog.String("error", err.Error()))
		fmt.Fprintf(os.Stderr, "Failed to create transcription client: %v\n", err)
		return 1
	}

	controller, err := pipeline.NewController(pipeline.Config{
		SilenceDetection:     cfg.Silence.Enabled,
		PollInterval:         cfg.Silence.GetPollInterval(),
		TranscriptionTimeout: cfg.Transcription.GetTimeoutDuration(),
		Hint:                 hint,
	}, recorder, client, logger, appMetrics)
	if err != nil {
		logger.Error("Failed to create controller", slog.String("error", err.Error()))
		return 1
	}

	var historyStore *history.Store
	if cfg.History.Enabled {
		historyStore, err = history.Open(cfg.History.Path)
		if err != nil {
			logger.Error("Failed to open history, continuing without it",
				slog.String("path", cfg.History.Path),
				slog.String("error", err.Error()))
		} else {
			defer historyStore.Close()
			pruneHistory(historyStore, cfg.History, logger)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go controller.Run(ctx)

	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		var hist server.History
		if historyStore != nil {
			hist = historyStore
		}
		httpServer = server.NewHTTPServer(cfg.HTTP, logger, cfg, controller, recorder, client, hist, appMetrics, registry)
		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
			fmt.Fprintf(os.Stderr, "Failed to start HTTP server: %v\n", err)
			return 1
		}
	}

	d := &dispatcher{logger: logger}
	if historyStore != nil {
		d.history = historyStore
	}
	if *copyResult {
		d.copyText = clipboard.WriteAll
	}
	if *notify {
		d.notify = func(title, message string) error {
			return beeep.Notify(title, message, "")
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var code int
	if *headless {
		frontend := make(chan pipeline.Event, 8)
		d.forward = func(ev pipeline.Event) {
			select {
			case frontend <- ev:
			case <-ctx.Done():
			}
		}
		dispatchDone := startDispatcher(d, controller)
		code = runHeadless(ctx, controller, frontend, sigChan, logger)
		cancel()
		<-dispatchDone
	} else {
		p := tea.NewProgram(ui.New(controller, client, recorder), tea.WithAltScreen(), tea.WithContext(ctx))
		d.forward = func(ev pipeline.Event) { p.Send(ui.EventMsg{Event: ev}) }
		dispatchDone := startDispatcher(d, controller)

		go func() {
			select {
			case sig := <-sigChan:
				logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
				cancel()
			case <-ctx.Done():
			}
		}()

		if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			logger.Error("TUI exited with error", slog.String("error", err.Error()))
			code = 1
		}
		cancel()
		<-dispatchDone
	}

	logger.Info("Starting graceful shutdown...")

	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}

	stats := client.GetStats()
	logger.Info("Final transcription statistics",
		slog.Uint64("total_requests", stats.TotalRequests),
		slog.Uint64("success_requests", stats.SuccessRequests),
		slog.Uint64("failed_requests", stats.FailedRequests),
		slog.Duration("avg_response_time", stats.AvgResponseTime),
	)

	logger.Info("Service stopped")
	return code
}

// startDispatcher runs d until the controller has stopped and its
// buffered events are handled
func startDispatcher(d *dispatcher, controller *pipeline.Controller) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		d.run(controller.Events(), controller.Done())
	}()
	return done
}

// runHeadless captures once and prints the transcription. The first
// interrupt stops capture, a second one aborts.
func runHeadless(ctx context.Context, controller *pipeline.Controller, events <-chan pipeline.Event,
	sigChan <-chan os.Signal, logger *slog.Logger) int {

	if err := controller.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start capture: %v\n", err)
		return 1
	}
	fmt.Fprintln(os.Stderr, "Recording... press Ctrl+C to stop")

	stopping := false
	captureEnded := false
	for {
		select {
		case sig := <-sigChan:
			if stopping {
				logger.Info("Aborted by second signal", slog.String("signal", sig.String()))
				return 130
			}
			stopping = true
			fmt.Fprintln(os.Stderr, "Stopping...")
			if err := controller.Stop(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "Failed to stop capture: %v\n", err)
				return 1
			}

		case ev := <-events:
			switch ev := ev.(type) {
			case pipeline.CaptureStateChanged:
				if !ev.Capturing {
					captureEnded = true
					fmt.Fprintln(os.Stderr, "Transcribing...")
				}
			case pipeline.SilenceCancelled:
				fmt.Fprintln(os.Stderr, "Silence detected")
			case pipeline.CaptureFailed:
				fmt.Fprintf(os.Stderr, "Capture failed: %v\n", ev.Err)
				// a failure after capture ended means no clip was produced
				if captureEnded {
					return 1
				}
			case pipeline.TranscriptionFinished:
				if !ev.Result.OK() {
					fmt.Fprintf(os.Stderr, "Transcription failed: %s\n", ev.Result.Err.Message)
					return 1
				}
				fmt.Println(ev.Result.Text)
				return 0
			}

		case <-ctx.Done():
			return 1
		}
	}
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) (*slog.Logger, func()) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	closer := func() {}
	var output io.Writer
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout":
		output = os.Stdout
	default:
		// the TUI owns the terminal, so a file is the usual choice
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stderr\n", cfg.Output, err)
			output = os.Stderr
		} else {
			output = file
			closer = func() { file.Close() }
		}
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler), closer
}

// pruneHistory drops entries older than the configured retention
func pruneHistory(store *history.Store, cfg config.HistoryConfig, logger *slog.Logger) {
	cutoff, ok := cfg.Cutoff(time.Now())
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	removed, err := store.Prune(ctx, cutoff)
	if err != nil {
		logger.Warn("Failed to prune history", slog.String("error", err.Error()))
		return
	}
	if removed > 0 {
		logger.Info("Pruned old history entries",
			slog.Int64("removed", removed),
			slog.Int("retention_days", cfg.RetentionDays))
	}
}

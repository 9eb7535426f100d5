// Package main implements a service that watches an upcoming sneaker releases
// page and emails an alert when new releases appear.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"release-notifier/config"
	"release-notifier/email"
	"release-notifier/metrics"
	"release-notifier/poll"
	"release-notifier/scraper"
	"release-notifier/server"
	"release-notifier/storage"

	gcs "cloud.google.com/go/storage"
	"github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"google.golang.org/api/gmail/v1"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		// go-flags has already printed its own parse errors
		var flagsErr *flags.Error
		if !errors.As(err, &flagsErr) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
	if cfg == nil {
		return // help requested
	}

	// Initialize structured logger
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	// W3C trace context flows from /pollz callers through the cycle to the
	// listing fetch. Spans go to whatever TracerProvider the host installs.
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Release notifier failed", "mode", cfg.Mode, "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	keywords := cfg.Keywords
	if keywords == nil {
		keywords = scraper.DefaultKeywords
	}
	scr := scraper.New(scraper.NewClient(cfg.Timeout), cfg.SourceURL, keywords, logger)

	store, closeStore, err := newStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	provider, err := newProvider(ctx, cfg, logger)
	if err != nil {
		return err
	}
	sender := email.New(provider, logger, cfg.Receiver, cfg.Subject, cfg.Attachments)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	monitor := poll.New(scr, store, sender, metrics.NewCollector(reg), logger)

	logger.Info("Release notifier starting",
		"mode", cfg.Mode,
		"source_url", cfg.SourceURL,
		"email_provider", cfg.EmailProvider,
		"keywords", len(keywords))

	switch cfg.Mode {
	case config.ModeLoop:
		monitor.Run(ctx, cfg.Interval)
		return nil
	case config.ModeServe:
		go monitor.Run(ctx, cfg.Interval)
		srv := server.New(&server.Config{
			Poller:  monitor,
			Metrics: metrics.Handler(reg),
			Logger:  logger,
		})
		if err := srv.ListenAndServe(ctx, cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	default:
		_, err := monitor.RunOnce(ctx)
		return err
	}
}

func newStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*storage.Store, func(), error) {
	if cfg.Bucket == "" {
		logger.Info("Using local snapshot storage", "path", cfg.SnapshotPath)
		return storage.NewLocal(cfg.SnapshotPath, logger), func() {}, nil
	}

	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("initialize storage client: %w", err)
	}
	logger.Info("Using GCS snapshot storage", "bucket", cfg.Bucket, "key", cfg.SnapshotKey)
	closeFn := func() {
		if err := client.Close(); err != nil {
			logger.Warn("Failed to close storage client", "error", err)
		}
	}
	return storage.NewBucket(client, cfg.Bucket, cfg.SnapshotKey, logger), closeFn, nil
}

// newProvider builds the configured transport. Missing credentials are not
// an error here; the provider reports them when a notification is sent.
func newProvider(ctx context.Context, cfg *config.Config, logger *slog.Logger) (email.Provider, error) {
	switch cfg.EmailProvider {
	case "mock":
		logger.Info("Mock email mode enabled")
		return email.NewMockProvider(logger), nil
	case "brevo":
		return email.NewBrevoProvider(cfg.BrevoAPIKey, cfg.Sender, cfg.FromName, logger), nil
	case "gmail":
		svc, err := initGmailService(ctx, cfg.GmailCreds)
		if err != nil {
			logger.Warn("Failed to initialize Gmail service", "error", err)
		}
		return email.NewGmailProvider(svc, logger), nil
	case "smtp", "":
		return email.NewSMTPProvider(cfg.SMTPHost, cfg.SMTPPort, cfg.Sender, cfg.Password, logger), nil
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.EmailProvider)
	}
}

func initGmailService(ctx context.Context, credsPath string) (*gmail.Service, error) {
	// Explicit credentials first
	if credsPath != "" {
		credsJSON, err := os.ReadFile(credsPath)
		if err != nil {
			return nil, fmt.Errorf("read gmail credentials: %w", err)
		}
		return email.NewGmailService(ctx, credsJSON)
	}

	// On Cloud Run the service account provides Application Default Credentials
	if isCloudRun(ctx) {
		return email.NewGmailService(ctx, nil)
	}

	return nil, errors.New("no gmail credentials configured")
}

// isCloudRun checks if we're running in a GCP environment by querying the metadata server.
func isCloudRun(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, metadataURL, http.NoBody)
	if err != nil {
		return false
	}
	req.Header.Set("Metadata-Flavor", "Google")

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	return resp.StatusCode == http.StatusOK
}

var metadataURL = "http://metadata.google.internal/computeMetadata/v1/project/project-id"

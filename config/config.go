// Package config loads runtime settings from flags and environment variables.
package config

import (
	"errors"
	"fmt"
	"net/mail"
	"os"
	"regexp"
	"time"

	"github.com/jessevdk/go-flags"
	"gopkg.in/yaml.v3"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// Run modes.
const (
	ModeOnce  = "once"
	ModeLoop  = "loop"
	ModeServe = "serve"
)

type rawCfg struct {
	Mode      string        `long:"mode" env:"MODE" default:"once" choice:"once" choice:"loop" choice:"serve" description:"Run a single cycle, loop forever, or loop while serving HTTP"`
	SourceURL string        `long:"source-url" env:"SOURCE_URL" default:"https://www.nike.com/ca/launch?s=upcoming" description:"Upcoming releases page"`
	Interval  time.Duration `long:"interval" env:"POLL_INTERVAL" default:"1h" description:"Delay between cycles in loop and serve modes"`
	Timeout   time.Duration `long:"timeout" env:"HTTP_TIMEOUT" default:"30s" description:"Listing fetch timeout"`
	Watchlist string        `long:"watchlist" env:"WATCHLIST" description:"YAML file with the product keywords to keep"`

	// Snapshot storage
	SnapshotPath string `long:"snapshot-path" env:"SNAPSHOT_PATH" default:"old_data.csv" description:"Local snapshot file"`
	Bucket       string `long:"bucket" env:"STORAGE_BUCKET" description:"GCS bucket for the snapshot; overrides --snapshot-path"`
	SnapshotKey  string `long:"snapshot-key" env:"SNAPSHOT_KEY" default:"releases/old_data.csv" description:"Object name inside --bucket"`

	// Notification
	EmailProvider string   `long:"email-provider" env:"EMAIL_PROVIDER" default:"smtp" choice:"smtp" choice:"gmail" choice:"brevo" choice:"mock" description:"Email transport"`
	SMTPHost      string   `long:"smtp-host" env:"SMTP_HOST" default:"smtp.gmail.com" description:"SMTP server (implicit TLS)"`
	SMTPPort      int      `long:"smtp-port" env:"SMTP_PORT" default:"465" description:"SMTP port"`
	Sender        string   `long:"sender" env:"SENDER_EMAIL" description:"Sender address and SMTP username"`
	Password      string   `long:"password" env:"EMAIL_PASSWORD" description:"SMTP password"`
	Receiver      string   `long:"receiver" env:"RECEIVER_EMAIL" description:"Notification recipient"`
	GmailCreds    string   `long:"gmail-credentials" env:"GMAIL_CREDENTIALS_FILE" description:"Gmail API credentials JSON file"`
	BrevoAPIKey   string   `long:"brevo-api-key" env:"BREVO_API_KEY" description:"Brevo API key"`
	FromName      string   `long:"from-name" env:"FROM_NAME" default:"Release Notifier" description:"Sender display name (Brevo)"`
	Subject       string   `long:"subject" env:"EMAIL_SUBJECT" default:"New Sneaker Releases Found!" description:"Notification subject"`
	Attachments   []string `long:"attachment" env:"EMAIL_ATTACHMENTS" env-delim:"," description:"Image embedded inline in every notification (repeatable)"`

	// Server
	Port  string `long:"port" env:"PORT" default:"8080" description:"HTTP server port in serve mode"`
	Debug bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

// Config is the validated runtime configuration.
type Config struct {
	Mode      string
	SourceURL string
	Interval  time.Duration
	Timeout   time.Duration
	// Keywords is nil when no watchlist was given.
	Keywords []string

	SnapshotPath string
	Bucket       string
	SnapshotKey  string

	EmailProvider string
	SMTPHost      string
	SMTPPort      int
	Sender        string
	Password      string
	Receiver      string
	GmailCreds    string
	BrevoAPIKey   string
	FromName      string
	Subject       string
	Attachments   []string

	Port  string
	Debug bool
}

// Load parses args (without the program name) and the environment.
// It returns nil, nil when help was requested.
func Load(args []string) (*Config, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.ParseArgs(args); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Config{
		Mode:          raw.Mode,
		SourceURL:     raw.SourceURL,
		Interval:      raw.Interval,
		Timeout:       raw.Timeout,
		SnapshotPath:  raw.SnapshotPath,
		Bucket:        raw.Bucket,
		SnapshotKey:   raw.SnapshotKey,
		EmailProvider: raw.EmailProvider,
		SMTPHost:      raw.SMTPHost,
		SMTPPort:      raw.SMTPPort,
		Sender:        raw.Sender,
		Password:      raw.Password,
		Receiver:      raw.Receiver,
		GmailCreds:    raw.GmailCreds,
		BrevoAPIKey:   raw.BrevoAPIKey,
		FromName:      raw.FromName,
		Subject:       raw.Subject,
		Attachments:   raw.Attachments,
		Port:          raw.Port,
		Debug:         raw.Debug,
	}

	if raw.Watchlist != "" {
		keywords, err := LoadWatchlist(raw.Watchlist)
		if err != nil {
			return nil, err
		}
		cfg.Keywords = keywords
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.SourceURL == "" {
		return errors.New("source URL is required")
	}
	if c.Mode != ModeOnce && c.Interval <= 0 {
		return fmt.Errorf("interval must be positive in %s mode", c.Mode)
	}
	if c.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	if c.Bucket == "" && c.SnapshotPath == "" {
		return errors.New("either a snapshot path or a bucket is required")
	}
	if c.Bucket != "" && c.SnapshotKey == "" {
		return errors.New("snapshot key is required with a bucket")
	}
	// Empty addresses are reported by the provider when it sends.
	if c.Sender != "" && !isValidEmail(c.Sender) {
		return fmt.Errorf("invalid sender address %q", c.Sender)
	}
	if c.Receiver != "" && !isValidEmail(c.Receiver) {
		return fmt.Errorf("invalid receiver address %q", c.Receiver)
	}
	return nil
}

func isValidEmail(email string) bool {
	if len(email) < 3 || len(email) > 254 {
		return false
	}

	// Use mail.ParseAddress for robust validation
	_, err := mail.ParseAddress(email)
	return err == nil && emailRegex.MatchString(email)
}

type watchlistFile struct {
	Keywords []string `yaml:"keywords"`
}

// LoadWatchlist reads the keyword list from a YAML file of the form
// "keywords: [Dunk, Air Jordan]". An empty list keeps every product.
func LoadWatchlist(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read watchlist: %w", err)
	}

	var wl watchlistFile
	if err := yaml.Unmarshal(data, &wl); err != nil {
		return nil, fmt.Errorf("failed to parse watchlist: %w", err)
	}

	keywords := make([]string, 0, len(wl.Keywords))
	for _, k := range wl.Keywords {
		if k == "" {
			continue
		}
		keywords = append(keywords, k)
	}
	return keywords, nil
}

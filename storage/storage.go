// Package storage handles persistence of the release snapshot.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"release-notifier/pkg/release"

	"cloud.google.com/go/storage"
	"github.com/codeGROOVE-dev/retry"
)

// Store persists the last scraped snapshot either to a local CSV file or to
// a Cloud Storage object. Only one process is expected to write a given snapshot.
type Store struct {
	client    *storage.Client
	logger    *slog.Logger
	localPath string
	bucket    string
	key       string
}

// NewLocal creates a store backed by a CSV file on disk.
func NewLocal(path string, logger *slog.Logger) *Store {
	return &Store{
		logger:    logger,
		localPath: path,
	}
}

// NewBucket creates a store backed by a Cloud Storage object.
func NewBucket(client *storage.Client, bucket, key string, logger *slog.Logger) *Store {
	return &Store{
		client: client,
		logger: logger,
		bucket: bucket,
		key:    key,
	}
}

// Load reads the previous snapshot. A missing snapshot is returned as empty.
func (s *Store) Load(ctx context.Context) (release.Snapshot, error) {
	var data []byte

	if s.localPath != "" {
		var err error
		data, err = os.ReadFile(s.localPath)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				s.logger.Info("No previous snapshot, starting empty", "path", s.localPath)
				return release.Snapshot{}, nil
			}
			return nil, fmt.Errorf("read from local storage: %w", err)
		}
	} else {
		var notFound bool
		err := retry.Do(
			func() error {
				r, openErr := s.client.Bucket(s.bucket).Object(s.key).NewReader(ctx)
				if openErr != nil {
					if errors.Is(openErr, storage.ErrObjectNotExist) {
						notFound = true
						return nil
					}
					return fmt.Errorf("open storage reader: %w", openErr)
				}
				defer func() {
					if closeErr := r.Close(); closeErr != nil {
						s.logger.Warn("Failed to close storage reader", "error", closeErr)
					}
				}()

				var readErr error
				data, readErr = io.ReadAll(r)
				if readErr != nil {
					return fmt.Errorf("read from storage: %w", readErr)
				}
				return nil
			},
			retry.Attempts(3),
			retry.Delay(time.Second),
			retry.MaxDelay(2*time.Minute),
			retry.MaxJitter(10*time.Second),
			retry.Context(ctx),
			retry.OnRetry(func(n uint, retryErr error) {
				s.logger.Info("Retrying snapshot load after error", "attempt", n, "key", s.key, "error", retryErr)
			}),
		)
		if err != nil {
			return nil, fmt.Errorf("load after retries: %w", err)
		}
		if notFound {
			s.logger.Info("No previous snapshot, starting empty", "bucket", s.bucket, "key", s.key)
			return release.Snapshot{}, nil
		}
	}

	snap, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}

	s.logger.Debug("Snapshot loaded", "records", len(snap))
	return snap, nil
}

// Save replaces the persisted snapshot with snap.
func (s *Store) Save(ctx context.Context, snap release.Snapshot) error {
	var buf bytes.Buffer
	if err := Encode(&buf, snap); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	data := buf.Bytes()

	if s.localPath != "" {
		if err := writeFileAtomic(s.localPath, data); err != nil {
			return fmt.Errorf("write to local storage: %w", err)
		}
		s.logger.Info("Snapshot saved to local storage", "path", s.localPath, "records", len(snap))
		return nil
	}

	err := retry.Do(
		func() error {
			w := s.client.Bucket(s.bucket).Object(s.key).NewWriter(ctx)
			w.ContentType = "text/csv"
			if _, writeErr := w.Write(data); writeErr != nil {
				if closeErr := w.Close(); closeErr != nil {
					s.logger.Warn("Failed to close writer after error", "error", closeErr)
				}
				return fmt.Errorf("write to storage: %w", writeErr)
			}
			if closeErr := w.Close(); closeErr != nil {
				return fmt.Errorf("close storage writer: %w", closeErr)
			}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(2*time.Minute),
		retry.MaxJitter(10*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, retryErr error) {
			s.logger.Info("Retrying snapshot save after error", "attempt", n, "key", s.key, "error", retryErr)
		}),
	)
	if err != nil {
		return fmt.Errorf("save after retries: %w", err)
	}

	s.logger.Info("Snapshot saved", "bucket", s.bucket, "key", s.key, "records", len(snap))
	return nil
}

// writeFileAtomic writes to a temp file in the same directory and renames it
// over path, so readers never see a partially written snapshot.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

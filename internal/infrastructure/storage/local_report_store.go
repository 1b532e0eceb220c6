package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	appsync "github.com/meschain/marketsync/internal/application/marketsync"
	infraconfig "github.com/meschain/marketsync/internal/infrastructure/config"
)

var _ appsync.ReportStore = (*LocalReportStore)(nil)

// LocalReportStore writes reports below a directory
type LocalReportStore struct {
	dir string
}

// NewLocalReportStore creates the directory if needed
func NewLocalReportStore(dir string) (*LocalReportStore, error) {
	if dir == "" {
		return nil, errors.New("storage local dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}
	return &LocalReportStore{dir: dir}, nil
}

// Put writes body to dir/key through a temp file and returns the file path
func (s *LocalReportStore) Put(_ context.Context, key, _ string, body io.Reader, _ int64) (string, error) {
	clean := filepath.Clean("/" + key)
	if key == "" || strings.HasSuffix(key, "/") || clean == "/" {
		return "", fmt.Errorf("invalid report key %q", key)
	}
	path := filepath.Join(s.dir, clean)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".report-*")
	if err != nil {
		return "", fmt.Errorf("create report file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}

// NewReportStore builds the store selected by storage.type
func NewReportStore(cfg *infraconfig.StorageConfig, opts ...S3ReportStoreOption) (appsync.ReportStore, error) {
	switch cfg.Type {
	case "s3":
		return NewS3ReportStore(cfg, opts...)
	case "local", "":
		return NewLocalReportStore(cfg.LocalDir)
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

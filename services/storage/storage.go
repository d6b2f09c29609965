package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/tech-arch1tect/clipstream/config"
	"github.com/tech-arch1tect/clipstream/services/logging"
	"go.uber.org/zap"
)

var ErrUploadFailed = errors.New("upload failed")

// Storage is the boundary to wherever media ends up. The auth
// subsystem only needs "file in, URL out" and best-effort deletion of
// a previously returned URL.
type Storage interface {
	Upload(ctx context.Context, localPath string) (string, error)
	Delete(ctx context.Context, url string) error
}

// Disk stores uploads under a local directory and serves them from a
// configured base URL. It stands in for an object store in
// development and tests.
type Disk struct {
	dir     string
	baseURL string
	logger  *logging.Service
}

func NewDisk(cfg *config.Config, logger *logging.Service) (*Disk, error) {
	if err := os.MkdirAll(cfg.Upload.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}

	return &Disk{
		dir:     cfg.Upload.Dir,
		baseURL: strings.TrimSuffix(cfg.Upload.BaseURL, "/"),
		logger:  logger,
	}, nil
}

func (d *Disk) Upload(ctx context.Context, localPath string) (string, error) {
	if localPath == "" {
		return "", fmt.Errorf("%w: no file supplied", ErrUploadFailed)
	}

	src, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	defer src.Close()

	name := uuid.New().String() + filepath.Ext(localPath)
	dst, err := os.Create(filepath.Join(d.dir, name))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(dst.Name())
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	url := d.baseURL + "/" + name
	if d.logger != nil {
		d.logger.Debug("stored upload", zap.String("url", url))
	}

	return url, nil
}

func (d *Disk) Delete(ctx context.Context, url string) error {
	if !strings.HasPrefix(url, d.baseURL+"/") {
		return fmt.Errorf("url %q is not served from this store", url)
	}

	name := filepath.Base(strings.TrimPrefix(url, d.baseURL+"/"))
	if err := os.Remove(filepath.Join(d.dir, name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete %q: %w", url, err)
	}

	return nil
}

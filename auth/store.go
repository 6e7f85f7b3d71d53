package auth

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/bitrise-io/go-utils/v2/log"
)

// ErrCacheMiss is returned by a CacheStore that holds no cache yet.
var ErrCacheMiss = errors.New("token cache not found")

// CacheStore persists the serialized token cache.
type CacheStore interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
}

// NewCacheStore builds the store selected by config.Style. config must be validated.
func NewCacheStore(ctx context.Context, config Config, logger log.Logger) (CacheStore, error) {
	switch config.Style {
	case StyleLocal:
		return NewLocalStore(config.Path, config.LocalPart(), config.CacheName, logger)
	case StyleBlob:
		return NewBlobStore(ctx, BlobParams{
			Bucket:          config.Bucket,
			Region:          config.Region,
			Prefix:          config.Prefix,
			AccessKeyID:     config.AccessKeyID,
			SecretAccessKey: config.SecretAccessKey,
			LocalPart:       config.LocalPart(),
			CacheName:       config.CacheName,
		}, logger)
	default:
		return nil, fmt.Errorf("unsupported cache style %q", config.Style)
	}
}

// LocalStore keeps the cache in <dir>/<user>_<cacheName>.
type LocalStore struct {
	path   string
	logger log.Logger
}

// NewLocalStore creates dir when missing.
func NewLocalStore(dir, localPart, cacheName string, logger log.Logger) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	path, err := filepath.Abs(filepath.Join(dir, localPart+"_"+cacheName))
	if err != nil {
		return nil, err
	}
	return &LocalStore{path: path, logger: logger}, nil
}

// Path ...
func (s *LocalStore) Path() string {
	return s.path
}

// Load ...
func (s *LocalStore) Load(context.Context) ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("read token cache: %w", err)
	}
	s.logger.Debugf("Token cache loaded from %s", s.path)
	return data, nil
}

// Save replaces the cache file atomically.
func (s *LocalStore) Save(_ context.Context, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("create token cache: %w", err)
	}
	defer func() {
		if err := os.Remove(tmp.Name()); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.logger.Printf("remove %s: %s", tmp.Name(), err)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write token cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write token cache: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace token cache: %w", err)
	}

	s.logger.Debugf("Token cache written to %s", s.path)
	return nil
}

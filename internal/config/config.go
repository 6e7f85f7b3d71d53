// Package config loads the officectl settings from a TOML file and OFFICECLIENT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/docker/go-units"
	"github.com/oyoms/go-officeclient/auth"
	"github.com/oyoms/go-officeclient/graph"
	"github.com/oyoms/go-officeclient/teams"
	"github.com/oyoms/go-officeclient/transfer"
	toml "github.com/pelletier/go-toml/v2"
)

const (
	defaultConfigPath = "~/.config/go-officeclient/config.toml"
	envPrefix         = "OFFICECLIENT_"
)

// Environment variables, without the OFFICECLIENT_ prefix. Cache credentials are only read from the environment.
const (
	EnvUser             = "USER"
	EnvTenant           = "TENANT"
	EnvCacheStyle       = "CACHE_STYLE"
	EnvCachePath        = "CACHE_PATH"
	EnvCacheBucket      = "CACHE_BUCKET"
	EnvCacheRegion      = "CACHE_REGION"
	EnvCachePrefix      = "CACHE_PREFIX"
	EnvCacheAccessKeyID = "CACHE_ACCESS_KEY_ID"
	EnvCacheSecretKey   = "CACHE_SECRET_ACCESS_KEY"
	EnvChunkSize        = "CHUNK_SIZE"
	EnvGraphBaseURL     = "GRAPH_BASE_URL"
	EnvSignInTimeout    = "SIGN_IN_TIMEOUT"
	EnvUploadFolder     = "UPLOAD_FOLDER"
)

// Config is the resolved client configuration.
type Config struct {
	Auth         auth.Config
	BaseURL      string
	DriveRoot    string
	ChunkSize    int64
	UploadFolder string
	ReadCells    int
	WriteCells   int
}

type fileConfig struct {
	User          string `toml:"user"`
	Tenant        string `toml:"tenant"`
	TenantID      string `toml:"tenant_id"`
	ClientID      string `toml:"client_id"`
	SignInTimeout string `toml:"sign_in_timeout"`

	Cache struct {
		Style  string `toml:"style"`
		Path   string `toml:"path"`
		Name   string `toml:"name"`
		Bucket string `toml:"bucket"`
		Region string `toml:"region"`
		Prefix string `toml:"prefix"`
	} `toml:"cache"`

	Graph struct {
		BaseURL string `toml:"base_url"`
	} `toml:"graph"`

	Drive struct {
		Root         string `toml:"root"`
		ChunkSize    string `toml:"chunk_size"`
		UploadFolder string `toml:"upload_folder"`
	} `toml:"drive"`

	Workbook struct {
		ReadCells  int `toml:"read_cells"`
		WriteCells int `toml:"write_cells"`
	} `toml:"workbook"`
}

// Load reads path (the default location when empty), applies environment overrides and validates
// the result. A missing file is not an error.
func Load(path string, envRepo env.Repository) (Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	var raw fileConfig
	file, err := os.Open(resolved)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return Config{}, fmt.Errorf("open config: %w", err)
	default:
		defer file.Close() //nolint:errcheck

		data, err := io.ReadAll(file)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := toml.Unmarshal(data, &raw); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	overlay(&raw, envRepo)
	return build(raw, envRepo)
}

func overlay(raw *fileConfig, envRepo env.Repository) {
	set := func(target *string, key string) {
		if v := strings.TrimSpace(envRepo.Get(envPrefix + key)); v != "" {
			*target = v
		}
	}

	set(&raw.User, EnvUser)
	set(&raw.Tenant, EnvTenant)
	set(&raw.SignInTimeout, EnvSignInTimeout)
	set(&raw.Cache.Style, EnvCacheStyle)
	set(&raw.Cache.Path, EnvCachePath)
	set(&raw.Cache.Bucket, EnvCacheBucket)
	set(&raw.Cache.Region, EnvCacheRegion)
	set(&raw.Cache.Prefix, EnvCachePrefix)
	set(&raw.Graph.BaseURL, EnvGraphBaseURL)
	set(&raw.Drive.ChunkSize, EnvChunkSize)
	set(&raw.Drive.UploadFolder, EnvUploadFolder)
}

func build(raw fileConfig, envRepo env.Repository) (Config, error) {
	authConfig := auth.DefaultConfig(strings.TrimSpace(raw.User))
	if v := strings.TrimSpace(raw.Tenant); v != "" {
		authConfig.Tenant = v
	}
	authConfig.TenantID = strings.TrimSpace(raw.TenantID)
	authConfig.ClientID = strings.TrimSpace(raw.ClientID)

	if v := strings.TrimSpace(raw.SignInTimeout); v != "" {
		timeout, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse sign_in_timeout: %w", err)
		}
		authConfig.SignInTimeout = timeout
	}

	if v := strings.TrimSpace(raw.Cache.Style); v != "" {
		authConfig.Style = auth.Style(strings.ToLower(v))
	}
	if v := strings.TrimSpace(raw.Cache.Path); v != "" {
		expanded, err := expandPath(v)
		if err != nil {
			return Config{}, err
		}
		authConfig.Path = expanded
	}
	if v := strings.TrimSpace(raw.Cache.Name); v != "" {
		authConfig.CacheName = v
	}
	authConfig.Bucket = strings.TrimSpace(raw.Cache.Bucket)
	authConfig.Region = strings.TrimSpace(raw.Cache.Region)
	authConfig.Prefix = strings.Trim(strings.TrimSpace(raw.Cache.Prefix), "/")
	authConfig.AccessKeyID = envRepo.Get(envPrefix + EnvCacheAccessKeyID)
	authConfig.SecretAccessKey = envRepo.Get(envPrefix + EnvCacheSecretKey)

	if err := authConfig.Validate(); err != nil {
		return Config{}, fmt.Errorf("auth: %w", err)
	}

	cfg := Config{
		Auth:         authConfig,
		BaseURL:      strings.TrimSpace(raw.Graph.BaseURL),
		DriveRoot:    strings.TrimSpace(raw.Drive.Root),
		ChunkSize:    transfer.DefaultMaxChunkBytes,
		UploadFolder: strings.TrimSpace(raw.Drive.UploadFolder),
		ReadCells:    raw.Workbook.ReadCells,
		WriteCells:   raw.Workbook.WriteCells,
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = graph.DefaultBaseURL
	}
	if cfg.UploadFolder == "" {
		cfg.UploadFolder = teams.DefaultUploadFolder
	}
	if cfg.ReadCells <= 0 {
		cfg.ReadCells = transfer.DefaultReadCells
	}
	if cfg.WriteCells <= 0 {
		cfg.WriteCells = transfer.DefaultWriteCells
	}

	if v := strings.TrimSpace(raw.Drive.ChunkSize); v != "" {
		size, err := units.RAMInBytes(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse chunk_size: %w", err)
		}
		if size < transfer.ChunkAlignment || size%transfer.ChunkAlignment != 0 {
			return Config{}, fmt.Errorf("chunk_size %s is not a multiple of %s", v, units.BytesSize(transfer.ChunkAlignment))
		}
		cfg.ChunkSize = size
	}

	return cfg, nil
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}

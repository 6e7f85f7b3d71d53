// Package auth acquires delegated access tokens with the OAuth 2.0 device code flow
// and persists them in a token cache, either on local disk or in an S3 bucket.
package auth

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Style selects where the token cache lives.
type Style string

const (
	// StyleLocal keeps the token cache in a file. The directory must persist between runs.
	StyleLocal Style = "local"
	// StyleBlob keeps the token cache in an object store, for short-lived machines.
	StyleBlob Style = "blob"
)

const (
	// DefaultAuthority is the identity platform login host.
	DefaultAuthority = "https://login.microsoftonline.com"
	// DefaultCacheName is the token cache file name suffix.
	DefaultCacheName = "token_cache.json"
	// SignInTimeout bounds how long the device flow waits for the user, so unattended runs fail.
	SignInTimeout = 300 * time.Second

	appDirName = "go-officeclient"
)

// Tenant is a registered directory with the application allowed to request tokens in it.
type Tenant struct {
	TenantID string
	ClientID string
}

// KnownTenants are the directories the client ships application registrations for.
var KnownTenants = map[string]Tenant{
	"OYO": {
		TenantID: "04ec3963-dddc-45fb-afb7-85fa38e19b99",
		ClientID: "7c8cca7c-7351-4d57-b94d-18e2ba1e4e24",
	},
	"OVH": {
		TenantID: "ad0a533f-0117-494e-93f1-1ba98a9fd13c",
		ClientID: "d7aad037-aacb-47e8-9953-3fd6c906216e",
	},
}

// Config describes who signs in and where their token cache is kept.
type Config struct {
	User  string
	Style Style

	// Path is the cache directory for StyleLocal.
	Path      string
	CacheName string

	// Tenant names an entry of KnownTenants. TenantID and ClientID override it.
	Tenant    string
	TenantID  string
	ClientID  string
	Authority string

	SignInTimeout time.Duration

	// Bucket, Region and Prefix locate the cache object for StyleBlob.
	Bucket          string
	Region          string
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string
}

// DefaultConfig returns a local cache configuration for user in the OYO tenant.
func DefaultConfig(user string) Config {
	return Config{
		User:          user,
		Style:         StyleLocal,
		Path:          defaultCacheDir(),
		CacheName:     DefaultCacheName,
		Tenant:        "OYO",
		Authority:     DefaultAuthority,
		SignInTimeout: SignInTimeout,
	}
}

func defaultCacheDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(os.TempDir(), appDirName)
	}
	return filepath.Join(dir, appDirName)
}

// Validate fills tenant and client IDs from KnownTenants and checks the storage settings.
func (c *Config) Validate() error {
	if c.User == "" {
		return fmt.Errorf("user must not be empty")
	}

	if c.TenantID == "" || c.ClientID == "" {
		tenant, ok := KnownTenants[c.Tenant]
		if !ok {
			return fmt.Errorf("unknown tenant %q", c.Tenant)
		}
		if c.TenantID == "" {
			c.TenantID = tenant.TenantID
		}
		if c.ClientID == "" {
			c.ClientID = tenant.ClientID
		}
	}

	if c.Authority == "" {
		c.Authority = DefaultAuthority
	}
	if c.CacheName == "" {
		c.CacheName = DefaultCacheName
	}
	if c.SignInTimeout <= 0 {
		c.SignInTimeout = SignInTimeout
	}

	switch c.Style {
	case StyleLocal:
		if c.Path == "" {
			c.Path = defaultCacheDir()
		}
	case StyleBlob:
		if c.Bucket == "" {
			return fmt.Errorf("bucket must not be empty")
		}
	default:
		return fmt.Errorf("cache style must be either %q or %q, got %q", StyleLocal, StyleBlob, c.Style)
	}

	return nil
}

// LocalPart is the user name before the domain, used to namespace caches.
func (c Config) LocalPart() string {
	local, _, _ := strings.Cut(c.User, "@")
	return local
}

func (c Config) deviceAuthURL() string {
	return fmt.Sprintf("%s/%s/oauth2/v2.0/devicecode", strings.TrimSuffix(c.Authority, "/"), c.TenantID)
}

func (c Config) tokenURL() string {
	return fmt.Sprintf("%s/%s/oauth2/v2.0/token", strings.TrimSuffix(c.Authority, "/"), c.TenantID)
}

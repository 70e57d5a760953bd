// Package config loads and manages the storefront CLI configuration file
// stored at ~/.storefront/config.yaml. Values from a .env file and SF_*
// environment variables override the file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultConfigDir is the directory under the user's home for CLI state.
const DefaultConfigDir = ".storefront"

// DefaultConfigFile is the config file name within the config directory.
const DefaultConfigFile = "config.yaml"

// Defaults for a local twin.
const (
	DefaultAPIURL     = "http://localhost:8090"
	DefaultBaseDomain = "localhost"
	DefaultLocation   = "http://localhost:3000/"
)

// Environment variables that override file values.
const (
	EnvAPIURL           = "SF_API_URL"
	EnvGatewayURL       = "SF_GATEWAY_URL"
	EnvBaseDomain       = "SF_BASE_DOMAIN"
	EnvSubdomainRouting = "SF_SUBDOMAIN_ROUTING"
	EnvLocation         = "SF_LOCATION"
	EnvDataDir          = "SF_DATA_DIR"
	EnvAuthToken        = "SF_AUTH_TOKEN"
	EnvVerbose          = "SF_VERBOSE"
)

// Config represents the contents of ~/.storefront/config.yaml.
type Config struct {
	APIURL string `yaml:"api_url"`
	// GatewayURL is where the payment widget talks to; empty means APIURL.
	GatewayURL       string `yaml:"gateway_url,omitempty"`
	BaseDomain       string `yaml:"base_domain"`
	SubdomainRouting bool   `yaml:"subdomain_routing"`
	// Location is the page the buyer is on, used for tenant resolution and
	// post-checkout redirects.
	Location  string `yaml:"location"`
	DataDir   string `yaml:"data_dir,omitempty"`
	AuthToken string `yaml:"auth_token,omitempty"`
	Verbose   bool   `yaml:"verbose,omitempty"`
}

// Dir returns the path to the config directory.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}
	return filepath.Join(home, DefaultConfigDir), nil
}

// Path returns the full path to the default config file.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DefaultConfigFile), nil
}

// Load reads the config from ~/.storefront/config.yaml and applies
// environment overrides.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom reads the config at path, then a .env file in the working
// directory if present, then SF_* variables. A missing config file yields
// the defaults.
func LoadFrom(path string) (*Config, error) {
	cfg, err := readFile(path)
	if err != nil {
		return nil, err
	}
	// godotenv never overwrites variables that are already set.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if cfg.DataDir == "" {
		cfg.DataDir = filepath.Join(filepath.Dir(path), "data")
	}
	return cfg, nil
}

func readFile(path string) (*Config, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from lookup, typically os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	boolean := func(key string, dst *bool) error {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = b
		return nil
	}

	str(EnvAPIURL, &c.APIURL)
	str(EnvGatewayURL, &c.GatewayURL)
	str(EnvBaseDomain, &c.BaseDomain)
	str(EnvLocation, &c.Location)
	str(EnvDataDir, &c.DataDir)
	str(EnvAuthToken, &c.AuthToken)
	if err := boolean(EnvSubdomainRouting, &c.SubdomainRouting); err != nil {
		return err
	}
	return boolean(EnvVerbose, &c.Verbose)
}

// Gateway returns the payment gateway base URL.
func (c *Config) Gateway() string {
	if c.GatewayURL != "" {
		return c.GatewayURL
	}
	return c.APIURL
}

// Save writes the config to ~/.storefront/config.yaml.
func Save(cfg *Config) error {
	path, err := Path()
	if err != nil {
		return err
	}
	return SaveTo(path, cfg)
}

// SaveTo writes the config to path, creating its directory.
func SaveTo(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	// May hold an auth token.
	return os.WriteFile(path, data, 0o600)
}

func defaultConfig() *Config {
	return &Config{
		APIURL:     DefaultAPIURL,
		BaseDomain: DefaultBaseDomain,
		Location:   DefaultLocation,
	}
}

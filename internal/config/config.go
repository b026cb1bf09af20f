package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/harrison/gpfind/internal/logger"
)

// Supported volume backends
const (
	BackendLocal = "local" // go-billy osfs rooted at <server>/<volume>
	BackendMinio = "minio" // S3-compatible endpoint through minio-go
	BackendS3    = "s3"    // AWS S3 through aws-sdk-go-v2
)

// DefaultPort is the glusterd management port.
const DefaultPort = 24007

// Environment variables consulted for object store credentials
const (
	EnvAccessKey = "GPFIND_ACCESS_KEY"
	EnvSecretKey = "GPFIND_SECRET_KEY"
)

// S3Config holds settings for the object store backends
type S3Config struct {
	// AccessKey is the access key ID (falls back to GPFIND_ACCESS_KEY)
	AccessKey string `yaml:"access_key"`

	// SecretKey is the secret access key (falls back to GPFIND_SECRET_KEY)
	SecretKey string `yaml:"secret_key"`

	// Region is the bucket region
	Region string `yaml:"region"`

	// UseSSL selects https for the minio backend
	UseSSL bool `yaml:"use_ssl"`
}

// Config represents gpfind configuration options
type Config struct {
	// Backend selects the volume client: local, minio or s3
	Backend string `yaml:"backend"`

	// Server is the volume server host (or export root for the local backend)
	Server string `yaml:"server"`

	// Port is the volume server port
	Port int `yaml:"port"`

	// Volume is the volume name (bucket for object stores)
	Volume string `yaml:"volume"`

	// Path is the directory to start the traversal from
	Path string `yaml:"path"`

	// Workers is the number of concurrent discovery workers
	Workers int `yaml:"workers"`

	// Printers is the number of print sink consumers
	Printers int `yaml:"printers"`

	// FileBuffer is the capacity of the channel feeding the print sink
	FileBuffer int `yaml:"file_buffer"`

	// PoolSize is the maximum number of sessions (0 = one per worker)
	PoolSize int `yaml:"pool_size"`

	// Timeout bounds the whole traversal (0 = no timeout)
	Timeout time.Duration `yaml:"timeout"`

	// LogLevel sets the logging verbosity (trace, debug, info, warn, error)
	LogLevel string `yaml:"log_level"`

	// LogDir enables the rotating file log when set
	LogDir string `yaml:"log_dir"`

	// Output is a file to write paths to instead of stdout
	Output string `yaml:"output"`

	// S3 contains object store settings
	S3 S3Config `yaml:"s3"`
}

// DefaultConfig returns a Config with sensible default values
func DefaultConfig() *Config {
	return &Config{
		Backend:    BackendLocal,
		Port:       DefaultPort,
		Path:       "/",
		Workers:    8,
		Printers:   1,
		FileBuffer: 1024,
		PoolSize:   0,
		Timeout:    0,
		LogLevel:   "info",
		S3: S3Config{
			Region: "us-east-1",
			UseSSL: true,
		},
	}
}

// LoadConfig loads configuration from the specified file path
// If the file doesn't exist, returns default configuration without error
// If the file exists but is malformed, returns an error
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Use a temporary struct to handle duration parsing
	type yamlConfig struct {
		Backend    string   `yaml:"backend"`
		Server     string   `yaml:"server"`
		Port       int      `yaml:"port"`
		Volume     string   `yaml:"volume"`
		Path       string   `yaml:"path"`
		Workers    int      `yaml:"workers"`
		Printers   int      `yaml:"printers"`
		FileBuffer int      `yaml:"file_buffer"`
		PoolSize   int      `yaml:"pool_size"`
		Timeout    string   `yaml:"timeout"`
		LogLevel   string   `yaml:"log_level"`
		LogDir     string   `yaml:"log_dir"`
		Output     string   `yaml:"output"`
		S3         S3Config `yaml:"s3"`
	}

	var yamlCfg yamlConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply non-zero values from file (merging with defaults)
	if yamlCfg.Backend != "" {
		cfg.Backend = yamlCfg.Backend
	}
	if yamlCfg.Server != "" {
		cfg.Server = yamlCfg.Server
	}
	if yamlCfg.Port != 0 {
		cfg.Port = yamlCfg.Port
	}
	if yamlCfg.Volume != "" {
		cfg.Volume = yamlCfg.Volume
	}
	if yamlCfg.Path != "" {
		cfg.Path = yamlCfg.Path
	}
	if yamlCfg.Workers != 0 {
		cfg.Workers = yamlCfg.Workers
	}
	if yamlCfg.Printers != 0 {
		cfg.Printers = yamlCfg.Printers
	}
	if yamlCfg.FileBuffer != 0 {
		cfg.FileBuffer = yamlCfg.FileBuffer
	}
	if yamlCfg.PoolSize != 0 {
		cfg.PoolSize = yamlCfg.PoolSize
	}
	if yamlCfg.Timeout != "" {
		timeout, err := time.ParseDuration(yamlCfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout format %q: %w", yamlCfg.Timeout, err)
		}
		cfg.Timeout = timeout
	}
	if yamlCfg.LogLevel != "" {
		cfg.LogLevel = yamlCfg.LogLevel
	}
	if yamlCfg.LogDir != "" {
		cfg.LogDir = yamlCfg.LogDir
	}
	if yamlCfg.Output != "" {
		cfg.Output = yamlCfg.Output
	}

	// The s3 section is merged key by key so an explicit use_ssl: false wins
	// over the default.
	var rawMap map[string]interface{}
	if err := yaml.Unmarshal(data, &rawMap); err == nil {
		if section, exists := rawMap["s3"]; exists && section != nil {
			s3Map, _ := section.(map[string]interface{})
			if _, exists := s3Map["access_key"]; exists {
				cfg.S3.AccessKey = yamlCfg.S3.AccessKey
			}
			if _, exists := s3Map["secret_key"]; exists {
				cfg.S3.SecretKey = yamlCfg.S3.SecretKey
			}
			if _, exists := s3Map["region"]; exists {
				cfg.S3.Region = yamlCfg.S3.Region
			}
			if _, exists := s3Map["use_ssl"]; exists {
				cfg.S3.UseSSL = yamlCfg.S3.UseSSL
			}
		}
	}

	return cfg, nil
}

// LoadConfigFromDir loads configuration from .gpfind/config.yaml in the specified directory
// If the directory or file doesn't exist, returns default configuration without error
func LoadConfigFromDir(dir string) (*Config, error) {
	return LoadConfig(filepath.Join(dir, ".gpfind", "config.yaml"))
}

// ApplyEnv fills object store credentials from the environment when the
// config file left them empty.
func (c *Config) ApplyEnv() {
	if c.S3.AccessKey == "" {
		c.S3.AccessKey = os.Getenv(EnvAccessKey)
	}
	if c.S3.SecretKey == "" {
		c.S3.SecretKey = os.Getenv(EnvSecretKey)
	}
}

// Overrides carries CLI flag values. Nil fields were not set on the command line.
type Overrides struct {
	Backend    *string
	Server     *string
	Port       *int
	Volume     *string
	Path       *string
	Workers    *int
	Printers   *int
	FileBuffer *int
	PoolSize   *int
	Timeout    *time.Duration
	LogLevel   *string
	LogDir     *string
	Output     *string
}

// MergeWithFlags merges CLI flags into the configuration
// Non-nil flag values override configuration values
func (c *Config) MergeWithFlags(o Overrides) {
	if o.Backend != nil {
		c.Backend = *o.Backend
	}
	if o.Server != nil {
		c.Server = *o.Server
	}
	if o.Port != nil {
		c.Port = *o.Port
	}
	if o.Volume != nil {
		c.Volume = *o.Volume
	}
	if o.Path != nil {
		c.Path = *o.Path
	}
	if o.Workers != nil {
		c.Workers = *o.Workers
	}
	if o.Printers != nil {
		c.Printers = *o.Printers
	}
	if o.FileBuffer != nil {
		c.FileBuffer = *o.FileBuffer
	}
	if o.PoolSize != nil {
		c.PoolSize = *o.PoolSize
	}
	if o.Timeout != nil {
		c.Timeout = *o.Timeout
	}
	if o.LogLevel != nil {
		c.LogLevel = *o.LogLevel
	}
	if o.LogDir != nil {
		c.LogDir = *o.LogDir
	}
	if o.Output != nil {
		c.Output = *o.Output
	}
}

// EffectivePoolSize returns the session pool size, one per worker when unset.
func (c *Config) EffectivePoolSize() int {
	if c.PoolSize > 0 {
		return c.PoolSize
	}
	return c.Workers
}

// Target describes the volume for logs and errors, e.g. "gluster1:24007/vol0".
func (c *Config) Target() string {
	switch c.Backend {
	case BackendLocal:
		return filepath.Join(c.Server, c.Volume)
	case BackendS3:
		if c.Server == "" {
			return "s3://" + c.Volume
		}
	}
	return fmt.Sprintf("%s:%d/%s", c.Server, c.Port, c.Volume)
}

// Validate validates the configuration values
// Returns an error if any values are invalid. The log level is accepted in
// any case and stored lowercased.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendLocal, BackendMinio:
		if c.Server == "" {
			return fmt.Errorf("server is required for the %s backend", c.Backend)
		}
	case BackendS3:
		// The AWS endpoint is resolved from the region unless a server is given.
	default:
		return fmt.Errorf("invalid backend %q, must be one of: %s, %s, %s", c.Backend, BackendLocal, BackendMinio, BackendS3)
	}

	if c.Volume == "" {
		return fmt.Errorf("volume is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if !strings.HasPrefix(c.Path, "/") {
		return fmt.Errorf("path must be absolute within the volume, got %q", c.Path)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be >= 1, got %d", c.Workers)
	}
	if c.Printers < 1 {
		return fmt.Errorf("printers must be >= 1, got %d", c.Printers)
	}
	if c.FileBuffer < 1 {
		return fmt.Errorf("file_buffer must be >= 1, got %d", c.FileBuffer)
	}
	if c.PoolSize < 0 {
		return fmt.Errorf("pool_size must be >= 0, got %d", c.PoolSize)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must be >= 0, got %v", c.Timeout)
	}

	level := strings.ToLower(strings.TrimSpace(c.LogLevel))
	if !slices.Contains(logger.ValidLevels, level) {
		return fmt.Errorf("invalid log_level %q, must be one of: %s", c.LogLevel, strings.Join(logger.ValidLevels, ", "))
	}
	c.LogLevel = level

	return nil
}

package config

import (
	"time"

	"github.com/sdejongh/replisync/pkg/models"
)

// Remote kinds
const (
	RemoteFolder = "folder"
	RemoteS3     = "s3"
	RemoteMinio  = "minio"
	RemoteDrive  = "gdrive"
)

// Config represents the application configuration
type Config struct {
	Replica     ReplicaConfig     `yaml:"replica"`
	Remote      RemoteConfig      `yaml:"remote"`
	Replace     ReplaceConfig     `yaml:"replace"`
	Performance PerformanceConfig `yaml:"performance"`
	Output      OutputConfig      `yaml:"output"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// ReplicaConfig describes the local replica
type ReplicaConfig struct {
	Path            string   `yaml:"path"`
	Sidecars        []string `yaml:"sidecars"`
	VerifyIntegrity bool     `yaml:"verify_integrity"`
}

// RemoteConfig selects and configures the remote store
type RemoteConfig struct {
	Kind             string      `yaml:"kind"`     // "folder", "s3", "minio" or "gdrive"
	Location         string      `yaml:"location"` // directory, key prefix or Drive folder id
	CandidatePattern string      `yaml:"candidate_pattern"`
	S3               S3Config    `yaml:"s3"`
	Minio            MinioConfig `yaml:"minio"`
	Drive            DriveConfig `yaml:"gdrive"`
}

// S3Config holds S3 settings; empty keys fall back to the AWS credential chain
type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// MinioConfig holds MinIO settings
type MinioConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// DriveConfig holds Google Drive settings
type DriveConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
}

// ReplaceConfig tunes the atomic install retry loop
type ReplaceConfig struct {
	Attempts  int           `yaml:"attempts"`
	BaseDelay time.Duration `yaml:"base_delay"`
}

// PerformanceConfig holds performance-related settings
type PerformanceConfig struct {
	BandwidthLimit int64 `yaml:"bandwidth_limit"` // bytes per second, 0 = unlimited
}

// OutputConfig holds output-related settings
type OutputConfig struct {
	Format   string `yaml:"format"`   // "human" or "json"
	Progress bool   `yaml:"progress"` // Show progress bars
	Quiet    bool   `yaml:"quiet"`    // Suppress non-error output
}

// LoggingConfig holds logging-related settings
type LoggingConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Format     string `yaml:"format"` // "json" or "text"
	Level      string `yaml:"level"`  // "debug", "info", "warn", "error"
	File       string `yaml:"file"`   // Log file path (empty = stderr)
	MaxSize    int64  `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Replica: ReplicaConfig{
			Sidecars:        []string{"-journal", "-wal", "-shm"},
			VerifyIntegrity: false,
		},
		Remote: RemoteConfig{
			Kind:             RemoteFolder,
			CandidatePattern: "*.db",
		},
		Replace: ReplaceConfig{
			Attempts:  8,
			BaseDelay: 250 * time.Millisecond,
		},
		Performance: PerformanceConfig{
			BandwidthLimit: 0,
		},
		Output: OutputConfig{
			Format:   "human",
			Progress: false,
			Quiet:    false,
		},
		Logging: LoggingConfig{
			Enabled:    true,
			Format:     "text",
			Level:      "info",
			File:       "",
			MaxSize:    10 * 1024 * 1024,
			MaxBackups: 3,
		},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	validKinds := map[string]bool{RemoteFolder: true, RemoteS3: true, RemoteMinio: true, RemoteDrive: true}
	if !validKinds[c.Remote.Kind] {
		return &models.ValidationError{
			Field:   "remote.kind",
			Message: "must be 'folder', 's3', 'minio', or 'gdrive'",
		}
	}

	switch c.Remote.Kind {
	case RemoteS3:
		if c.Remote.S3.Bucket == "" {
			return &models.ValidationError{Field: "remote.s3.bucket", Message: "is required"}
		}
	case RemoteMinio:
		if c.Remote.Minio.Endpoint == "" {
			return &models.ValidationError{Field: "remote.minio.endpoint", Message: "is required"}
		}
		if c.Remote.Minio.Bucket == "" {
			return &models.ValidationError{Field: "remote.minio.bucket", Message: "is required"}
		}
	}

	if c.Replace.Attempts < 1 {
		return &models.ValidationError{
			Field:   "replace.attempts",
			Message: "must be at least 1",
		}
	}

	if c.Replace.BaseDelay < 0 {
		return &models.ValidationError{
			Field:   "replace.base_delay",
			Message: "must not be negative",
		}
	}

	if c.Performance.BandwidthLimit < 0 {
		return &models.ValidationError{
			Field:   "performance.bandwidth_limit",
			Message: "must not be negative",
		}
	}

	validFormats := map[string]bool{"human": true, "json": true}
	if !validFormats[c.Output.Format] {
		return &models.ValidationError{
			Field:   "output.format",
			Message: "must be 'human' or 'json'",
		}
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[c.Logging.Format] {
		return &models.ValidationError{
			Field:   "logging.format",
			Message: "must be 'json' or 'text'",
		}
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return &models.ValidationError{
			Field:   "logging.level",
			Message: "must be 'debug', 'info', 'warn', or 'error'",
		}
	}

	return nil
}

package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

// Environment variables that override secrets in the config file.
const (
	EnvEncryptionKey  = "ENCRYPTION_KEY"
	EnvSecretKey      = "SECRET_KEY"
	EnvTargetPassword = "SK_TARGET_PASSWORD"
)

// DefaultToolTimeoutSeconds bounds external dump and restore tools.
const DefaultToolTimeoutSeconds = 1800

// Config represents the main configuration for sk.
type Config struct {
	BaseDir      string           `toml:"base_dir" validate:"required"`
	LogDir       string           `toml:"log_dir"`
	DefaultActor string           `toml:"default_actor,omitempty"` // username used when --as is not given
	Encryption   EncryptionConfig `toml:"encryption"`
	Database     DatabaseConfig   `toml:"database"`
	Backup       BackupConfig     `toml:"backup"`
	Target       TargetConfig     `toml:"target"`
	Vaults       []VaultConfig    `toml:"vaults" validate:"dive"`
}

// EncryptionConfig selects the cipher. With type "key" the key is either a
// base64url 32-byte key or derived from secret.
type EncryptionConfig struct {
	Type   string `toml:"type" validate:"omitempty,oneof=key test"` // "key" (default) or "test"
	Key    string `toml:"key,omitempty"`
	Secret string `toml:"secret,omitempty"`
}

// DatabaseConfig represents configuration for the metadata database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type" validate:"required,oneof=sqlite memory"`
	DataDir string `toml:"data_dir,omitempty" validate:"required_if=Type sqlite"` // only used for type=sqlite
}

// BackupConfig holds the backup manager's directories and limits.
type BackupConfig struct {
	BackupDir          string   `toml:"backup_dir" validate:"required"`
	MediaRoot          string   `toml:"media_root,omitempty"`
	LogsRoot           string   `toml:"logs_root,omitempty"`
	Exclude            []string `toml:"exclude,omitempty"`
	ToolTimeoutSeconds int      `toml:"tool_timeout_seconds" validate:"gte=0"`
	MinFreeBytes       uint64   `toml:"min_free_bytes,omitempty"`
	MetricsTextfile    string   `toml:"metrics_textfile,omitempty"`
}

// TargetConfig describes the application database being backed up.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type TargetConfig struct {
	Type string `toml:"type" validate:"required,oneof=sqlite postgres mysql"`

	// sqlite
	Path string `toml:"path,omitempty" validate:"required_if=Type sqlite"`

	// postgres and mysql
	Host       string `toml:"host,omitempty"`
	Port       int    `toml:"port,omitempty" validate:"gte=0,lte=65535"`
	User       string `toml:"user,omitempty"`
	Password   string `toml:"password,omitempty"`
	Name       string `toml:"name,omitempty" validate:"required_if=Type postgres,required_if=Type mysql"`
	DumpBin    string `toml:"dump_bin,omitempty"`
	RestoreBin string `toml:"restore_bin,omitempty"`
}

// VaultConfig represents configuration for an off-site copy of the artifacts.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type VaultConfig struct {
	Type string `toml:"type" validate:"required,oneof=memory s3 filesystem"`
	Name string `toml:"name" validate:"required"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket       string `toml:"s3_bucket,omitempty" validate:"required_if=Type s3"`
	S3Prefix       string `toml:"s3_prefix,omitempty"`
	S3Region       string `toml:"s3_region,omitempty"`
	S3Endpoint     string `toml:"s3_endpoint,omitempty" validate:"omitempty,url"`
	S3AccessKey    string `toml:"s3_access_key,omitempty"`
	S3SecretKey    string `toml:"s3_secret_key,omitempty"`
	TimeoutSeconds int    `toml:"timeout_seconds,omitempty" validate:"gte=0"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSVaultRoot string `toml:"fs_vault_root,omitempty" validate:"required_if=Type filesystem"`
}

// NewConfig creates a Config rooted at baseDir with default paths. The
// application database defaults to a SQLite file inside baseDir.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir:    baseDir,
		LogDir:     filepath.Join(baseDir, "log"),
		Encryption: EncryptionConfig{Type: "key"},
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "db"),
		},
		Backup: BackupConfig{
			BackupDir:          filepath.Join(baseDir, "backups"),
			ToolTimeoutSeconds: DefaultToolTimeoutSeconds,
		},
		Target: TargetConfig{
			Type: "sqlite",
			Path: filepath.Join(baseDir, "app.db"),
		},
	}
}

// ApplyEnv overrides secrets with the values of the corresponding
// environment variables, as returned by getenv. Empty values are ignored.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv(EnvEncryptionKey); v != "" {
		c.Encryption.Key = v
	}
	if v := getenv(EnvSecretKey); v != "" {
		c.Encryption.Secret = v
	}
	if v := getenv(EnvTargetPassword); v != "" {
		c.Target.Password = v
	}
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// Report fields by their TOML names.
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("toml"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Validate checks the config for missing or inconsistent settings.
func (c *Config) Validate() error {
	err := getValidator().Struct(c)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		messages := make([]string, len(verrs))
		for i, fe := range verrs {
			// Namespace is "Config.backup.backup_dir"; drop the root type.
			_, field, _ := strings.Cut(fe.Namespace(), ".")
			if fe.Param() != "" {
				messages[i] = fmt.Sprintf("%s: failed %s=%s", field, fe.Tag(), fe.Param())
			} else {
				messages[i] = fmt.Sprintf("%s: failed %s", field, fe.Tag())
			}
		}
		return fmt.Errorf("invalid config: %s", strings.Join(messages, "; "))
	}
	if err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	if c.Encryption.Type != "test" && c.Encryption.Key == "" && c.Encryption.Secret == "" {
		return fmt.Errorf("invalid config: encryption needs a key or a secret (set %s or %s)", EnvEncryptionKey, EnvSecretKey)
	}
	return nil
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path without applying
// environment overrides or validating it.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// Load reads the config at path, applies environment overrides and validates it.
func Load(path string) (*Config, error) {
	cfg, err := ReadFromFile(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
// The file may hold secrets, so it is only readable by its owner.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}

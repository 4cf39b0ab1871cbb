package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func validConfig() *Config {
	cfg := NewConfig("/home/user/.local/share/sk")
	cfg.Encryption.Secret = "correct horse battery staple"
	return cfg
}

func TestManager_ReadWrite_RoundTrip(t *testing.T) {
	original := &Config{
		BaseDir:      "/home/user/.local/share/sk",
		LogDir:       "/home/user/.local/share/sk/log",
		DefaultActor: "admin",
		Vaults: []VaultConfig{
			{Type: "filesystem", Name: "local", FSVaultRoot: "/backup/vault"},
			{Type: "s3", Name: "offsite", S3Bucket: "backups", S3Prefix: "sk/", S3Region: "eu-west-1"},
		},
		Encryption: EncryptionConfig{Type: "key", Secret: "s3cret"},
		Database:   DatabaseConfig{Type: "sqlite", DataDir: "/home/user/.local/share/sk/db"},
		Backup: BackupConfig{
			BackupDir:          "/var/backups/sk",
			MediaRoot:          "/srv/media",
			LogsRoot:           "/var/log/app",
			Exclude:            []string{"*.tmp", "cache"},
			ToolTimeoutSeconds: 600,
			MinFreeBytes:       1 << 30,
			MetricsTextfile:    "/var/lib/node_exporter/sk.prom",
		},
		Target: TargetConfig{Type: "postgres", Host: "db", Port: 5432, User: "app", Name: "app"},
	}

	var buf bytes.Buffer
	m := &Manager{}

	if err := m.Write(&buf, original); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got.BaseDir != original.BaseDir {
		t.Errorf("BaseDir = %q, want %q", got.BaseDir, original.BaseDir)
	}
	if got.DefaultActor != "admin" {
		t.Errorf("DefaultActor = %q, want %q", got.DefaultActor, "admin")
	}
	if len(got.Vaults) != 2 {
		t.Fatalf("len(Vaults) = %d, want 2", len(got.Vaults))
	}
	if got.Vaults[1].S3Bucket != "backups" {
		t.Errorf("Vaults[1].S3Bucket = %q, want %q", got.Vaults[1].S3Bucket, "backups")
	}
	if got.Backup.MinFreeBytes != 1<<30 {
		t.Errorf("Backup.MinFreeBytes = %d, want %d", got.Backup.MinFreeBytes, 1<<30)
	}
	if strings.Join(got.Backup.Exclude, ",") != "*.tmp,cache" {
		t.Errorf("Backup.Exclude = %v", got.Backup.Exclude)
	}
	if got.Target.Port != 5432 || got.Target.Type != "postgres" {
		t.Errorf("Target = %+v", got.Target)
	}
	if err := got.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig("/base")

	if cfg.LogDir != filepath.Join("/base", "log") {
		t.Errorf("LogDir = %q", cfg.LogDir)
	}
	if cfg.Database.DataDir != filepath.Join("/base", "db") {
		t.Errorf("Database.DataDir = %q", cfg.Database.DataDir)
	}
	if cfg.Backup.BackupDir != filepath.Join("/base", "backups") {
		t.Errorf("Backup.BackupDir = %q", cfg.Backup.BackupDir)
	}
	if cfg.Backup.ToolTimeoutSeconds != DefaultToolTimeoutSeconds {
		t.Errorf("Backup.ToolTimeoutSeconds = %d", cfg.Backup.ToolTimeoutSeconds)
	}
	if cfg.Target.Type != "sqlite" || cfg.Target.Path == "" {
		t.Errorf("Target = %+v, want sqlite with a path", cfg.Target)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults with secret", mutate: func(*Config) {}},
		{name: "test cipher needs no key", mutate: func(c *Config) {
			c.Encryption = EncryptionConfig{Type: "test"}
		}},
		{name: "no key material", mutate: func(c *Config) {
			c.Encryption.Secret = ""
		}, wantErr: "key or a secret"},
		{name: "unknown cipher", mutate: func(c *Config) {
			c.Encryption.Type = "rot13"
		}, wantErr: "encryption.type"},
		{name: "sqlite database without data_dir", mutate: func(c *Config) {
			c.Database.DataDir = ""
		}, wantErr: "database.data_dir"},
		{name: "memory database", mutate: func(c *Config) {
			c.Database = DatabaseConfig{Type: "memory"}
		}},
		{name: "missing backup_dir", mutate: func(c *Config) {
			c.Backup.BackupDir = ""
		}, wantErr: "backup.backup_dir"},
		{name: "negative tool timeout", mutate: func(c *Config) {
			c.Backup.ToolTimeoutSeconds = -1
		}, wantErr: "backup.tool_timeout_seconds"},
		{name: "postgres target without name", mutate: func(c *Config) {
			c.Target = TargetConfig{Type: "postgres", Host: "db"}
		}, wantErr: "target.name"},
		{name: "mysql target", mutate: func(c *Config) {
			c.Target = TargetConfig{Type: "mysql", Host: "db", Port: 3306, Name: "app"}
		}},
		{name: "port out of range", mutate: func(c *Config) {
			c.Target = TargetConfig{Type: "mysql", Port: 70000, Name: "app"}
		}, wantErr: "target.port"},
		{name: "s3 vault without bucket", mutate: func(c *Config) {
			c.Vaults = []VaultConfig{{Type: "s3", Name: "offsite"}}
		}, wantErr: "vaults[0].s3_bucket"},
		{name: "filesystem vault without root", mutate: func(c *Config) {
			c.Vaults = []VaultConfig{{Type: "filesystem", Name: "local"}}
		}, wantErr: "vaults[0].fs_vault_root"},
		{name: "vault with bad endpoint", mutate: func(c *Config) {
			c.Vaults = []VaultConfig{{Type: "s3", Name: "minio", S3Bucket: "b", S3Endpoint: "not a url"}}
		}, wantErr: "vaults[0].s3_endpoint"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_ApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvEncryptionKey:  "a2V5",
		EnvSecretKey:      "from-env",
		EnvTargetPassword: "hunter2",
	}
	cfg := validConfig()
	cfg.ApplyEnv(func(k string) string { return env[k] })

	if cfg.Encryption.Key != "a2V5" {
		t.Errorf("Encryption.Key = %q", cfg.Encryption.Key)
	}
	if cfg.Encryption.Secret != "from-env" {
		t.Errorf("Encryption.Secret = %q", cfg.Encryption.Secret)
	}
	if cfg.Target.Password != "hunter2" {
		t.Errorf("Target.Password = %q", cfg.Target.Password)
	}

	t.Run("empty values keep the file", func(t *testing.T) {
		cfg := validConfig()
		cfg.ApplyEnv(func(string) string { return "" })
		if cfg.Encryption.Secret != "correct horse battery staple" {
			t.Errorf("Encryption.Secret = %q", cfg.Encryption.Secret)
		}
	})
}

func TestInit(t *testing.T) {
	t.Run("creates config file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "nested", "sk.toml")

		if err := Init(path, validConfig()); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("config file not created: %v", err)
		}
		if info.Mode().Perm() != 0600 {
			t.Errorf("config mode = %v, want 0600", info.Mode().Perm())
		}
	})

	t.Run("fails if file already exists", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "sk.toml")

		if err := Init(path, validConfig()); err != nil {
			t.Fatalf("first Init() error = %v", err)
		}
		if err := Init(path, validConfig()); err == nil {
			t.Fatal("second Init() expected error")
		}
	})
}

func TestLoad(t *testing.T) {
	t.Run("reads, overrides and validates", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "sk.toml")
		cfg := validConfig()
		cfg.Encryption.Secret = ""
		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		t.Setenv(EnvSecretKey, "env-secret")
		got, err := Load(path)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if got.Encryption.Secret != "env-secret" {
			t.Errorf("Encryption.Secret = %q, want env-secret", got.Encryption.Secret)
		}
	})

	t.Run("rejects invalid config", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "sk.toml")
		if err := os.WriteFile(path, []byte("base_dir = \"/x\"\n"), 0600); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(path); err == nil {
			t.Error("Load() expected validation error")
		}
	})

	t.Run("returns error for missing file", func(t *testing.T) {
		if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
			t.Error("Load() expected error for missing file")
		}
	})
}

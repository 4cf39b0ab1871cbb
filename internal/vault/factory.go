package vault

import (
	"context"
	"fmt"
	"time"

	"safekeep/internal/config"
	"safekeep/internal/sk"
)

// NewVaultFromConfig creates a Vault implementation based on the vault config type.
func NewVaultFromConfig(ctx context.Context, cfg config.VaultConfig) (sk.Vault, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryVault(cfg.Name), nil
	case "s3":
		v, err := NewS3Vault(ctx, cfg.Name, S3Options{
			Bucket:    cfg.S3Bucket,
			Prefix:    cfg.S3Prefix,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Timeout:   time.Duration(cfg.TimeoutSeconds) * time.Second,
		})
		if err != nil {
			return nil, err
		}
		return v, nil
	case "filesystem":
		if cfg.FSVaultRoot == "" {
			return nil, fmt.Errorf("filesystem vault requires fs_vault_root to be set")
		}
		v, err := NewFileSystemVault(cfg.Name, cfg.FSVaultRoot)
		if err != nil {
			return nil, err
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unknown vault type: %s", cfg.Type)
	}
}

// NewVaultsFromConfig builds the off-site target for the configured vaults:
// nil when none are configured, the vault itself when there is one, and a
// Mirror otherwise.
func NewVaultsFromConfig(ctx context.Context, cfgs []config.VaultConfig) (sk.Vault, error) {
	if len(cfgs) == 0 {
		return nil, nil
	}

	vaults := make([]sk.Vault, 0, len(cfgs))
	for _, cfg := range cfgs {
		v, err := NewVaultFromConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("vault %s: %w", cfg.Name, err)
		}
		vaults = append(vaults, v)
	}
	if len(vaults) == 1 {
		return vaults[0], nil
	}
	return NewMirror(vaults...), nil
}

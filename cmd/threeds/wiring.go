package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/kevin07696/gateway-sdk/internal/adapters/filestore"
	"github.com/kevin07696/gateway-sdk/internal/adapters/memory"
	"github.com/kevin07696/gateway-sdk/internal/adapters/ports"
	"github.com/kevin07696/gateway-sdk/internal/adapters/postgres"
	"github.com/kevin07696/gateway-sdk/internal/adapters/secrets"
	"github.com/kevin07696/gateway-sdk/internal/config"
	"github.com/kevin07696/gateway-sdk/internal/transport"
	pkghttp "github.com/kevin07696/gateway-sdk/pkg/http"
)

// resolveAuthorization returns the inline authorization or fetches it from
// the configured secret backend
func resolveAuthorization(ctx context.Context, cfg *config.Config, logger *zap.Logger) (string, error) {
	if cfg.Authorization.Value != "" {
		return cfg.Authorization.Value, nil
	}

	source, err := credentialSource(ctx, cfg.Secrets, logger)
	if err != nil {
		return "", err
	}

	raw, err := source.Fetch(ctx, cfg.Authorization.SecretName)
	if err != nil {
		return "", fmt.Errorf("failed to fetch authorization: %w", err)
	}
	return raw, nil
}

func credentialSource(ctx context.Context, cfg config.SecretsConfig, logger *zap.Logger) (ports.CredentialSource, error) {
	switch cfg.Backend {
	case "aws":
		awsCfg := secrets.DefaultAWSSecretsManagerConfig(cfg.AWSRegion)
		awsCfg.Profile = cfg.AWSProfile
		awsCfg.Endpoint = cfg.AWSEndpoint
		if cfg.CacheTTL > 0 {
			awsCfg.CacheTTL = cfg.CacheTTL
		}
		return secrets.NewAWSSecretsManagerSource(ctx, awsCfg, logger)

	case "vault":
		vaultCfg := secrets.DefaultVaultConfig(cfg.VaultAddress)
		vaultCfg.Token = cfg.VaultToken
		if cfg.VaultMountPath != "" {
			vaultCfg.MountPath = cfg.VaultMountPath
		}
		if cfg.CacheTTL > 0 {
			vaultCfg.CacheTTL = cfg.CacheTTL
		}
		return secrets.NewVaultSource(ctx, vaultCfg, logger)

	default:
		return secrets.NewLocalSource(cfg.LocalPath, logger), nil
	}
}

func transportOptions(cfg *config.Config) ([]transport.Option, error) {
	opts := []transport.Option{
		transport.WithTimeouts(cfg.HTTP.ConnectTimeout, cfg.HTTP.ReadTimeout),
		transport.WithRateLimit(cfg.HTTP.RequestsPerSecond, cfg.HTTP.Burst),
	}

	if cfg.HTTP.CABundlePath != "" {
		bundle, err := os.ReadFile(cfg.HTTP.CABundlePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA bundle: %w", err)
		}
		tlsConfig, err := pkghttp.HardenedTLSConfig(bundle)
		if err != nil {
			return nil, fmt.Errorf("failed to build TLS configuration: %w", err)
		}
		opts = append(opts, transport.WithTLSConfig(tlsConfig))
	}

	return opts, nil
}

// openStore opens the pending-verification store and returns its closer
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (ports.PendingVerificationStore, func(), error) {
	switch cfg.Store.Backend {
	case "postgres":
		pgCfg := postgres.DefaultConfig(cfg.Store.DatabaseURL)

		initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		pool, err := postgres.NewPool(initCtx, pgCfg, logger)
		if err != nil {
			return nil, nil, err
		}

		store := postgres.NewPendingVerificationStore(pool, pgCfg, logger)
		if err := store.EnsureSchema(initCtx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, pool.Close, nil

	case "file":
		store, err := filestore.NewPendingVerificationStore(cfg.Store.Path, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil

	default:
		logger.Warn("Using in-memory pending verification store; redirects cannot be resumed by another process")
		return memory.NewPendingVerificationStore(), func() {}, nil
	}
}

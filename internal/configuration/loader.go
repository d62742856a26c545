package configuration

import (
	"context"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kevin07696/gateway-sdk/internal/authorization"
	"github.com/kevin07696/gateway-sdk/internal/gateway"
	"github.com/kevin07696/gateway-sdk/pkg/dispatch"
	apperrors "github.com/kevin07696/gateway-sdk/pkg/errors"
	"github.com/kevin07696/gateway-sdk/pkg/observability"
)

// configVersion is the document schema version requested from the gateway
const configVersion = "3"

// Fetcher retrieves the raw configuration document for a credential
type Fetcher interface {
	Fetch(ctx context.Context, cred *authorization.Credential, configURL string) (string, error)
}

// GatewayFetcher fetches configuration through a signed REST GET
type GatewayFetcher struct {
	executor gateway.Executor
	logger   *zap.Logger
}

// NewGatewayFetcher creates a fetcher that signs with the credential passed to Fetch
func NewGatewayFetcher(executor gateway.Executor, logger *zap.Logger) *GatewayFetcher {
	return &GatewayFetcher{executor: executor, logger: logger}
}

func (f *GatewayFetcher) Fetch(ctx context.Context, cred *authorization.Credential, configURL string) (string, error) {
	client := gateway.NewRESTClient(cred, f.executor, nil, f.logger)
	return client.Get(ctx, configURL, nil)
}

// Callback receives the result of LoadAsync: exactly one of cfg or err is set
type Callback func(cfg *Configuration, err error)

// Loader fetches configuration documents and caches them by config URL for
// its lifetime. Concurrent loads of the same URL share one fetch.
type Loader struct {
	fetcher    Fetcher
	dispatcher *dispatch.Dispatcher
	logger     *zap.Logger

	group singleflight.Group

	mu    sync.RWMutex
	cache map[string]*Configuration
}

// NewLoader creates a new configuration loader
func NewLoader(fetcher Fetcher, dispatcher *dispatch.Dispatcher, logger *zap.Logger) *Loader {
	return &Loader{
		fetcher:    fetcher,
		dispatcher: dispatcher,
		logger:     logger,
		cache:      make(map[string]*Configuration),
	}
}

// Load returns the configuration for cred, fetching it at most once per config URL.
// The shared fetch is not cancelled by ctx; ctx only bounds this caller's wait.
func (l *Loader) Load(ctx context.Context, cred *authorization.Credential) (*Configuration, error) {
	if cred == nil {
		return nil, apperrors.NewAuthorizationError("Authorization provided is null or empty")
	}
	if err := cred.Err(); err != nil {
		return nil, err
	}

	key := cred.ConfigURL()
	if cfg := l.cached(key); cfg != nil {
		observability.RecordConfigurationCacheHit()
		return cfg, nil
	}

	ch := l.group.DoChan(key, func() (interface{}, error) {
		// A fetch that finished between the cache check and here already stored it
		if cfg := l.cached(key); cfg != nil {
			return cfg, nil
		}
		return l.fetch(context.WithoutCancel(ctx), cred, key)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Configuration), nil
	case <-ctx.Done():
		return nil, apperrors.NewCancelledError("Configuration load cancelled")
	}
}

// LoadAsync is Load with the result delivered to cb on a worker goroutine
func (l *Loader) LoadAsync(ctx context.Context, cred *authorization.Credential, cb Callback) {
	if cb == nil {
		cb = func(*Configuration, error) {}
	}

	delivered := false
	started := l.dispatcher.Run("configuration.load", func() {
		cfg, err := l.Load(ctx, cred)
		delivered = true
		cb(cfg, err)
	}, func(err error) {
		if !delivered {
			cb(nil, apperrors.Wrap(apperrors.CategoryServer, "Configuration load aborted unexpectedly", err))
		}
	})
	if !started {
		go cb(nil, apperrors.NewCancelledError("Client has been shut down"))
	}
}

// Source binds the loader to one credential
func (l *Loader) Source(cred *authorization.Credential) *Source {
	return &Source{loader: l, cred: cred}
}

func (l *Loader) cached(key string) *Configuration {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cache[key]
}

func (l *Loader) fetch(ctx context.Context, cred *authorization.Credential, configURL string) (*Configuration, error) {
	startTime := time.Now()

	body, err := l.fetcher.Fetch(ctx, cred, withConfigVersion(configURL))
	if err != nil {
		observability.RecordConfigurationFetch(false)
		l.logger.Warn("Failed to fetch configuration",
			zap.String("config_url", configURL),
			zap.Duration("elapsed", time.Since(startTime)),
			zap.Error(err),
		)
		return nil, err
	}

	cfg, err := FromJSON(body)
	if err != nil {
		observability.RecordConfigurationFetch(false)
		l.logger.Warn("Failed to parse configuration",
			zap.String("config_url", configURL),
			zap.Error(err),
		)
		return nil, err
	}

	l.mu.Lock()
	l.cache[configURL] = cfg
	l.mu.Unlock()

	observability.RecordConfigurationFetch(true)
	l.logger.Info("Configuration loaded",
		zap.String("config_url", configURL),
		zap.String("environment", cfg.Environment()),
		zap.Bool("three_d_secure_enabled", cfg.IsThreeDSecureEnabled()),
		zap.Duration("elapsed", time.Since(startTime)),
	)

	return cfg, nil
}

func withConfigVersion(configURL string) string {
	u, err := url.Parse(configURL)
	if err != nil {
		// Let the transport classify the malformed URL
		return configURL
	}
	query := u.Query()
	query.Set("configVersion", configVersion)
	u.RawQuery = query.Encode()
	return u.String()
}

// Source loads the configuration of one credential
type Source struct {
	loader *Loader
	cred   *authorization.Credential
}

// Configuration returns the cached or freshly fetched configuration
func (s *Source) Configuration(ctx context.Context) (*Configuration, error) {
	return s.loader.Load(ctx, s.cred)
}

// Credential returns the bound credential
func (s *Source) Credential() *authorization.Credential {
	return s.cred
}

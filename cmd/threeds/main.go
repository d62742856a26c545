package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kevin07696/gateway-sdk/internal/authorization"
	"github.com/kevin07696/gateway-sdk/internal/config"
	"github.com/kevin07696/gateway-sdk/internal/configuration"
	"github.com/kevin07696/gateway-sdk/internal/gateway"
	"github.com/kevin07696/gateway-sdk/internal/threedsecure"
	"github.com/kevin07696/gateway-sdk/internal/transport"
	"github.com/kevin07696/gateway-sdk/pkg/dispatch"
	"github.com/kevin07696/gateway-sdk/pkg/observability"
	"github.com/kevin07696/gateway-sdk/pkg/shutdown"
)

func main() {
	var (
		action    = flag.String("action", "", "Action to perform: configuration, graphql, verify, resume")
		nonce     = flag.String("nonce", "", "Payment method nonce to verify")
		amount    = flag.String("amount", "", "Transaction amount to verify")
		version   = flag.String("version", "2", "Requested 3-D Secure version: 1 or 2")
		query     = flag.String("query", "", "GraphQL request body (JSON)")
		returnURL = flag.String("return-url", "", "Redirect return URL handed back by the browser")
		cancelled = flag.Bool("cancelled", false, "Resume as a cancelled redirect")
	)
	flag.Parse()

	if *action == "" {
		fmt.Println("Usage: threeds -action=<action> [options]")
		fmt.Println("Actions:")
		fmt.Println("  configuration - Fetch and print the merchant configuration")
		fmt.Println("  graphql       - Post a GraphQL request with -query")
		fmt.Println("  verify        - Start a verification with -nonce and -amount")
		fmt.Println("  resume        - Reconcile a redirect return with -return-url")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdowns := shutdown.NewManager(logger, 5*time.Second)

	if cfg.Metrics.Address != "" {
		metricsServer := observability.StartMetricsServer(cfg.Metrics.Address, logger)
		shutdowns.Register("metrics_server", func(context.Context) error {
			return observability.ShutdownMetricsServer(metricsServer)
		})
	}

	app, err := newApp(ctx, cfg, logger, shutdowns)
	if err != nil {
		logger.Error("Failed to initialize", zap.Error(err))
		shutdowns.Shutdown()
		os.Exit(1)
	}

	code := app.run(ctx, *action, options{
		nonce:     *nonce,
		amount:    *amount,
		version:   *version,
		query:     *query,
		returnURL: *returnURL,
		cancelled: *cancelled,
	})

	shutdowns.Shutdown()
	if code != 0 {
		os.Exit(code)
	}
}

type options struct {
	nonce     string
	amount    string
	version   string
	query     string
	returnURL string
	cancelled bool
}

// app holds the wired SDK components for one CLI invocation
type app struct {
	logger       *zap.Logger
	source       *configuration.Source
	graphQL      *gateway.GraphQLClient
	orchestrator *threedsecure.Orchestrator
}

// newApp wires the SDK. Components needing cleanup register with shutdowns.
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, shutdowns *shutdown.Manager) (*app, error) {
	raw, err := resolveAuthorization(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	cred := authorization.Parse(raw)
	if !cred.IsValid() {
		return nil, cred.Err()
	}
	logger.Info("Authorization parsed",
		zap.String("kind", cred.Kind().String()),
		zap.String("environment", cred.Environment()),
	)

	transportOpts, err := transportOptions(cfg)
	if err != nil {
		return nil, err
	}
	tr := transport.New(logger, transportOpts...)

	dispatcher := dispatch.New("threeds", logger)
	loader := configuration.NewLoader(configuration.NewGatewayFetcher(tr, logger), dispatcher, logger)
	source := loader.Source(cred)

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	shutdowns.RegisterNoErr("pending_store", closeStore)
	// registered last so in-flight verifications drain before the store closes
	shutdowns.Register("dispatcher", dispatcher.Shutdown)

	analytics := observability.NewAnalyticsRecorder(logger)
	logger.Info("Analytics session started", zap.String("session_id", analytics.SessionID()))

	orchestrator, err := threedsecure.NewOrchestrator(threedsecure.Config{
		ReturnURLScheme: cfg.ThreeDS.ReturnURLScheme,
		RedirectPath:    cfg.ThreeDS.RedirectPath,
	}, threedsecure.Dependencies{
		Configuration: source,
		Client:        gateway.NewRESTClient(cred, tr, dispatcher, logger),
		Host:          newConsoleHost(os.Stdout, cfg.ThreeDS.ReturnURLScheme),
		Store:         store,
		Analytics:     analytics,
		Dispatcher:    dispatcher,
	}, logger)
	if err != nil {
		return nil, err
	}

	return &app{
		logger:       logger,
		source:       source,
		graphQL:      gateway.NewGraphQLClient(cred, tr, dispatcher, logger),
		orchestrator: orchestrator,
	}, nil
}

func (a *app) run(ctx context.Context, action string, opts options) int {
	var err error

	switch action {
	case "configuration":
		err = a.printConfiguration(ctx)
	case "graphql":
		err = a.postGraphQL(ctx, opts.query)
	case "verify":
		err = a.verify(ctx, opts)
	case "resume":
		err = a.resume(ctx, opts)
	default:
		fmt.Printf("Unknown action: %s\n", action)
		return 1
	}

	if err != nil {
		a.logger.Error("Action failed", zap.String("action", action), zap.Error(err))
		return 1
	}
	return 0
}

// initLogger initializes the zap logger
func initLogger(cfg *config.Config) *zap.Logger {
	if cfg.Environment == "production" && !cfg.Logger.Development {
		zapCfg := zap.NewProductionConfig()
		zapCfg.Level = zap.NewAtomicLevelAt(parseLevel(cfg.Logger.Level))
		logger, _ := zapCfg.Build()
		return logger
	}

	zapCfg := zap.NewDevelopmentConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(parseLevel(cfg.Logger.Level))
	logger, _ := zapCfg.Build()
	return logger
}

func parseLevel(level string) zapcore.Level {
	parsed, err := zapcore.ParseLevel(level)
	if err != nil {
		return zapcore.InfoLevel
	}
	return parsed
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aaronlmathis/bladetemp/internal/api"
	"github.com/aaronlmathis/bladetemp/internal/cache"
	"github.com/aaronlmathis/bladetemp/internal/config"
	"github.com/aaronlmathis/bladetemp/internal/kube"
	"github.com/aaronlmathis/bladetemp/internal/logging"
	"github.com/aaronlmathis/bladetemp/internal/promapi"
	"github.com/aaronlmathis/bladetemp/internal/stream"
	"github.com/aaronlmathis/bladetemp/internal/temperature"
	"github.com/aaronlmathis/bladetemp/internal/version"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

type options struct {
	configPath string
	addr       string
	logLevel   string
}

// rootCmd represents the base command when called without any subcommands.
func rootCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "bladetemp",
		Short: "Serve per-blade temperature summaries from a Prometheus-compatible backend",
		Long: `bladetemp answers GET /api/temperatures with the maximum minutely, hourly
and daily hardware sensor temperature of every blade, read from a
VictoriaMetrics or Prometheus backend.

Configuration is read from the optional --config YAML file and then from
BLADETEMP_* environment variables. Flags override both.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "path to a YAML config file")
	cmd.Flags().StringVar(&opts.addr, "addr", "", "listen address (overrides server.addr)")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error (overrides logging.level)")

	cmd.AddCommand(versionCmd())

	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Get().String())
		},
	}
}

// Execute runs the root command. This is called by main.main().
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func loadConfig(opts options) (*config.Config, error) {
	cfg, err := config.LoadFromFile(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if opts.addr != "" {
		cfg.Server.Addr = opts.addr
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func run(ctx context.Context, cfg *config.Config) error {
	logger, err := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.FilePath)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	info := version.Get()
	logger.Info("Starting blade temperature API",
		zap.String("version", info.Version),
		zap.String("gitCommit", info.GitCommit),
		zap.String("buildDate", info.BuildDate),
		zap.String("goVersion", info.GoVersion),
		zap.String("addr", cfg.Server.Addr),
		zap.String("backend", cfg.Backend.URL),
		zap.String("devBackend", cfg.Backend.DevURL),
		zap.String("resolver", cfg.Resolver.Source))

	service, err := newTemperatureService(logger, cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var hub *stream.Hub
	if cfg.Stream.Enabled {
		hub = stream.NewHub(logger.Named("stream"), service, cfg.BackendURL(false), cfg.StreamInterval())
		go hub.Run(ctx)
	}

	apiServer := api.NewServer(logger, cfg, service, hub)

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Server starting", zap.String("addr", cfg.Server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Server shutting down...")
	if hub != nil {
		logger.Info("Closing stream clients", zap.Int("clients", hub.ClientCount()))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
		return err
	}

	logger.Info("Server exited")
	return nil
}

// newTemperatureService wires the query client, the configured resolver and
// the fetch/aggregate pipeline.
func newTemperatureService(logger *zap.Logger, cfg *config.Config) (*temperature.Service, error) {
	client := promapi.NewClient(logger.Named("promapi"), promapi.Config{Timeout: cfg.BackendTimeout()})
	filter := temperature.ExporterFilter{
		PodMatch: cfg.Resolver.PodMatch,
		Port:     cfg.Resolver.ExporterPort,
	}

	var resolver temperature.Resolver
	switch cfg.Resolver.Source {
	case "kubernetes":
		logger.Info("Initializing Kubernetes client", zap.String("mode", cfg.Kubernetes.Mode))
		kubeClient, err := kube.NewClient(logger, kube.ClientMode(cfg.Kubernetes.Mode), cfg.Kubernetes.KubeconfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create kubernetes client: %w", err)
		}
		// the resolver falls back to unknown_blade per request, so an
		// unreachable API server is not fatal at startup
		if err := kube.ValidateConnection(logger, kubeClient); err != nil {
			logger.Warn("Kubernetes API not reachable yet", zap.Error(err))
		}
		resolver = temperature.NewKubeResolver(logger.Named("resolver"), kubeClient, cfg.Kubernetes.Namespace, filter)
	default:
		resolver = temperature.NewPodInfoResolver(logger.Named("resolver"), client, filter)
	}

	if ttl := cfg.ResolverCacheTTL(); ttl > 0 {
		resolver = cache.NewMappingCache(logger.Named("resolver"), resolver, ttl)
	}

	return temperature.NewService(logger,
		resolver,
		temperature.NewFetcher(logger.Named("fetcher"), client, cfg.Backend.Metric),
		temperature.NewAggregator(logger.Named("aggregator")),
	), nil
}

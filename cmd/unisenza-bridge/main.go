package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/joshp123/unisenza-bridge/internal/config"
	"github.com/joshp123/unisenza-bridge/internal/core"
	"github.com/joshp123/unisenza-bridge/internal/hass"
	"github.com/joshp123/unisenza-bridge/internal/hass/discovery"
	"github.com/joshp123/unisenza-bridge/internal/integrations"
	"github.com/joshp123/unisenza-bridge/internal/logging"
	"github.com/joshp123/unisenza-bridge/internal/mqtt"
	"github.com/joshp123/unisenza-bridge/internal/rate"
	"github.com/joshp123/unisenza-bridge/internal/router"
	"github.com/joshp123/unisenza-bridge/internal/server"
	"github.com/joshp123/unisenza-bridge/internal/store"
	"github.com/joshp123/unisenza-bridge/internal/unisenza"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "validate":
			validateMain(os.Args[2:])
			return
		case "serve":
			serveMain(os.Args[2:])
			return
		case "-h", "--help", "help":
			usage()
			return
		}
	}
	serveMain(os.Args[1:])
}

func usage() {
	fmt.Println("unisenza-bridge [serve] [--config path]")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  serve      run the bridge (default)")
	fmt.Println("  validate   load and validate the config file")
}

func serveMain(args []string) {
	flags := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := flags.String("config", envOrDefault("UNISENZA_CONFIG", config.DefaultPath), "Path to config.json")
	_ = flags.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal("load config", err)
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fatal("init logging", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Fatal("unisenza-bridge stopped")
	}
}

func run(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	entryStore, err := newEntryStore(cfg.Store, logger)
	if err != nil {
		return err
	}

	mqttPassword, err := config.ReadSecretFile(cfg.MQTT.PasswordFile)
	if err != nil {
		return fmt.Errorf("read mqtt password: %w", err)
	}
	clientID := cfg.MQTT.ClientID
	if clientID == "" {
		clientID = mqtt.RandomClientID("unisenza-bridge")
	}
	broker, err := mqtt.Dial(mqtt.Config{
		BrokerURL:   cfg.MQTT.BrokerURL,
		Username:    cfg.MQTT.Username,
		Password:    mqttPassword,
		ClientID:    clientID,
		WillTopic:   discovery.BridgeAvailabilityTopic(cfg.Discovery.BaseTopic),
		WillPayload: discovery.PayloadOffline,
	}, logger)
	if err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	defer broker.Close()

	bridge := discovery.NewBridge(broker, discovery.Config{
		DiscoveryPrefix: cfg.Discovery.Prefix,
		BaseTopic:       cfg.Discovery.BaseTopic,
		StatusTopic:     cfg.Discovery.StatusTopic,
		Origin:          discovery.Origin{Name: "unisenza-bridge", SWVersion: unisenza.Version},
	}, logger)
	if err := bridge.Start(ctx); err != nil {
		return fmt.Errorf("discovery bridge: %w", err)
	}
	defer bridge.Close()

	h := hass.New(hass.Options{
		Logger:             logger,
		Sink:               bridge,
		Store:              entryStore,
		SetupRetryInterval: config.SetupRetryInterval(cfg),
	})

	compiled, err := integrations.Compiled(integrations.Deps{Config: cfg, Hass: h, Logger: logger})
	if err != nil {
		return err
	}
	if err := core.ValidateIntegrations(compiled); err != nil {
		return err
	}
	enabled := config.EnabledIntegrations(cfg)
	if err := core.ValidateEnabledIntegrations(compiled, enabled, false); err != nil {
		return err
	}
	active := core.FilterIntegrations(compiled, enabled, false)

	grpcServer, err := server.NewGRPCServer(cfg.Core.GRPCAddr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	health := router.Register(grpcServer.Server, h, active)

	extra := append([]prometheus.Collector{}, bridge.Collectors()...)
	extra = append(extra, store.MetricsCollectors()...)
	extra = append(extra, rate.MetricsCollectors()...)
	extra = append(extra, prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "unisenza_build_info",
		Help:        "Build information",
		ConstLabels: prometheus.Labels{"version": unisenza.Version},
	}, func() float64 { return 1 }))
	metricsRegistry := core.MetricsRegistry(active, extra...)

	httpMux := http.NewServeMux()
	httpMux.HandleFunc("/health", server.HealthHandler)
	httpMux.Handle("/metrics", server.MetricsHandler(metricsRegistry))
	integrationsAPI := server.IntegrationsHandler(core.NewRegistry(active))
	httpMux.Handle("/api/integrations", integrationsAPI)
	httpMux.Handle("/api/integrations/", integrationsAPI)
	server.NewConfigAPI(h, logger).RegisterHTTP(httpMux)
	for _, integration := range active {
		if registrant, ok := integration.(core.HTTPRegistrant); ok {
			registrant.RegisterHTTP(httpMux)
		}
	}
	httpServer := server.NewHTTPServer(cfg.Core.HTTPAddr, httpMux)

	if err := h.Start(ctx); err != nil {
		return fmt.Errorf("start config entries: %w", err)
	}
	health.Sync()

	errs := make(chan error, 2)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- fmt.Errorf("http serve: %w", err)
		}
	}()
	go func() {
		if err := grpcServer.Serve(); err != nil {
			errs <- fmt.Errorf("grpc serve: %w", err)
		}
	}()

	logger.WithFields(logrus.Fields{
		"grpc_addr": cfg.Core.GRPCAddr,
		"http_addr": cfg.Core.HTTPAddr,
		"entries":   len(h.ConfigEntries.Entries("")),
	}).Info("unisenza-bridge started")

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case runErr = <-errs:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	health.Shutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("http shutdown")
	}
	grpcServer.Stop()
	// Detach the bridge first so unloading keeps retained discovery documents.
	bridge.Close()
	h.Stop(shutdownCtx)
	return runErr
}

func newEntryStore(cfg *config.StoreConfig, logger *logrus.Logger) (*store.FileStore, error) {
	var blob store.BlobStore
	if cfg.MirrorEnabled() {
		s3, err := store.NewS3Store(cfg)
		if err != nil {
			return nil, fmt.Errorf("blob store: %w", err)
		}
		blob = s3
	}
	return store.NewFileStore(cfg.EntriesPath, blob, logger)
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func fatal(action string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", action, err)
	os.Exit(1)
}

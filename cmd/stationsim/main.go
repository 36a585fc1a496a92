package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ruslanhut/ocpp-stationsim/internal/config"
	"github.com/ruslanhut/ocpp-stationsim/internal/diagnostics"
	"github.com/ruslanhut/ocpp-stationsim/internal/fleet"
	"github.com/ruslanhut/ocpp-stationsim/internal/logging"
	"github.com/ruslanhut/ocpp-stationsim/internal/ocpp"
	"github.com/ruslanhut/ocpp-stationsim/internal/ocppcore"
	"github.com/ruslanhut/ocpp-stationsim/internal/opui"
	"github.com/ruslanhut/ocpp-stationsim/internal/perf"
	"github.com/ruslanhut/ocpp-stationsim/internal/storage"
	"github.com/ruslanhut/ocpp-stationsim/internal/transport"
)

const (
	appName    = "ocpp-stationsim"
	appVersion = "0.1.0"
)

func main() {
	configPath := flag.String("conf", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Printf("Error loading config: %v", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)
	logger.Info("starting OCPP station fleet simulator",
		slog.String("version", appVersion),
		slog.String("app", appName),
		slog.Int("stations", len(cfg.Fleet.Stations)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var history opui.History
	var msgLogger *logging.MessageLogger
	var analyticsClient opui.Analytics
	if cfg.MongoDB.URI != "" {
		mongoClient, err := storage.NewMongoDBClient(ctx, &cfg.MongoDB, logger)
		if err != nil {
			logger.Error("failed to connect to MongoDB", "error", err)
			os.Exit(1)
		}
		history = storage.NewTransactionRepository(mongoClient)
		msgLogger = logging.NewMessageLogger(mongoClient, logger, logging.LoggerConfig{})
		msgLogger.Start()
		analyticsClient = mongoClient
		logger.Info("transaction history and message log backed by MongoDB")
	} else {
		logger.Info("no mongodb.uri configured, transaction history and message log disabled")
	}

	tr := transport.New(&cfg.CSMS, logger)
	if msgLogger != nil {
		tr = tr.WithMessageLog(msgLogger)
	}
	sink := perf.NewSink()
	uploader := diagnostics.NewUploader(diagnostics.NewCollector(logDirsFor(cfg), logger))

	registry := fleet.NewRegistry()
	opuiServer := opui.NewServer(history, logger)
	if analyticsClient != nil {
		opuiServer.WithAnalytics(analyticsClient)
	}

	for _, sc := range cfg.Fleet.Stations {
		descriptor := descriptorFromConfig(sc)
		csmsURL := sc.CSMSURL
		if csmsURL == "" {
			csmsURL = cfg.CSMS.DefaultURL
		}
		runner := fleet.New(fleet.Params{
			Descriptor:  descriptor,
			CSMSURL:     csmsURL,
			Transport:   tr,
			Diagnostics: uploader,
			Sink:        sink,
			Logger:      logger,
		})
		registry.Add(runner)
		opuiServer.Register(descriptor.ChargingStationID, &opui.Station{Core: runner.Station, Router: runner.Router})
	}

	tr.OnCall = func(stationID string, call *ocpp.Call) {
		runner, ok := registry.Get(stationID)
		if !ok {
			logger.Warn("received CALL for unknown station", "station_id", stationID, "action", call.Action)
			return
		}
		runner.HandleCall(call)
	}

	for _, runner := range registry.All() {
		if err := runner.Start(ctx); err != nil {
			logger.Error("failed to start station", "station_id", runner.StationID, "error", err)
			continue
		}
		logger.Info("station started", "station_id", runner.StationID)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/opui/ws", opuiServer.HandleWS)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"healthy","version":"%s","stations":%d}`, appVersion, len(registry.All()))
	})

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting operator HTTP server", "address", serverAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("operator server failed", "error", err)
			os.Exit(1)
		}
	}()

	watcher, err := config.NewWatcher(*configPath, func(newCfg *config.Config, err error) {
		if err != nil {
			logger.Warn("config reload failed", "error", err)
			return
		}
		logger.Info("config reloaded (fleet membership changes require a restart)")
	})
	if err != nil {
		logger.Warn("failed to start config watcher", "error", err)
	}
	_ = watcher

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down station fleet simulator")

	for _, runner := range registry.All() {
		runner.Stop()
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("operator server forced to shutdown", "error", err)
	}
	if err := tr.Shutdown(); err != nil {
		logger.Error("failed to shutdown transport", "error", err)
	}
	if msgLogger != nil {
		if err := msgLogger.Shutdown(); err != nil {
			logger.Error("failed to shutdown message logger", "error", err)
		}
	}

	logger.Info("station fleet simulator stopped")
}

func descriptorFromConfig(sc config.StationDescriptorConfig) ocppcore.Descriptor {
	return ocppcore.Descriptor{
		ChargingStationID: sc.ChargingStationID,
		ConnectorCount:    sc.ConnectorCount,
		ConnectorMaxPower: sc.ConnectorMaxPower,
		ResetTimeSeconds:  sc.ResetTimeSeconds,
		Features: ocppcore.FeatureProfiles{
			SmartCharging:      sc.FeatureSmartCharging,
			FirmwareManagement: sc.FeatureFirmwareManagement,
			RemoteTrigger:      sc.FeatureRemoteTrigger,
		},
		AuthorizedTags:            sc.AuthorizedTags,
		RequireAuthorize:          sc.RequireAuthorize,
		AuthorizeRemoteTxRequests: sc.AuthorizeRemoteTxRequests,
		LocalAuthListEnabled:      sc.LocalAuthListEnabled,
		MayAuthorizeAtRemoteStart: sc.MayAuthorizeAtRemoteStart,
		OCPPStrictCompliance:      sc.OCPPStrictCompliance,
		BeginEndMeterValues:       sc.BeginEndMeterValues,
		OutOfOrderEndMeterValues:  sc.OutOfOrderEndMeterValues,
		HeartbeatIntervalSeconds:        sc.HeartbeatIntervalSeconds,
		MeterValueSampleIntervalSeconds: sc.MeterValueSampleIntervalSeconds,
		ATG: ocppcore.ATGParams{
			Enabled:                        sc.ATG.Enabled,
			ProbabilityOfStart:             sc.ATG.ProbabilityOfStart,
			MinDurationSeconds:             sc.ATG.MinDurationSeconds,
			MaxDurationSeconds:             sc.ATG.MaxDurationSeconds,
			MinDelayBetweenTwoTransactions: sc.ATG.MinDelayBetweenTwoTransactions,
			MaxDelayBetweenTwoTransactions: sc.ATG.MaxDelayBetweenTwoTransactions,
			StopAfterHours:                 sc.ATG.StopAfterHours,
		},
	}
}

func logDirsFor(cfg *config.Config) []string {
	if cfg.Logging.Output == "" || cfg.Logging.Output == "stdout" || cfg.Logging.Output == "stderr" {
		return []string{"."}
	}
	return []string{cfg.Logging.Output}
}

func initLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	switch cfg.Logging.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.Logging.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

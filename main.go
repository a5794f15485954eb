package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"orderflow/api/grpcserver"
	"orderflow/config"
	"orderflow/internal/channel"
	"orderflow/internal/dashboard"
	"orderflow/internal/metrics"
	"orderflow/logger"
	"orderflow/processor"
	"orderflow/reader"
	"orderflow/reader/binance"
	"orderflow/reader/bitstamp"
	"orderflow/reader/bybit"
	"orderflow/writer"
)

const defaultConfigPath = "config/config.yml"

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	var instrument string
	var debug bool
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.StringVar(&instrument, "instrument", "", "Instrument to aggregate, e.g. ethbtc")
	flag.StringVar(&instrument, "i", "", "Shorthand for -instrument")
	flag.BoolVar(&debug, "debug", false, "Enable verbose diagnostics")
	flag.BoolVar(&debug, "d", false, "Shorthand for -debug")
	flag.Parse()

	env := config.AppEnvironment()
	path := config.ResolvePath(*configPath, defaultConfigPath)
	if config.IsProductionLike(env) {
		if _, err := os.Stat(path); err != nil {
			log.WithError(err).WithFields(logger.Fields{"path": path, "env": env}).Error("configuration file required in this environment")
			os.Exit(1)
		}
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}
	if instrument != "" {
		cfg.Instrument = strings.TrimSpace(instrument)
	}
	if debug {
		cfg.Debug = true
	}
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Error("Invalid configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge, cfg.Debug); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service":    cfg.Orderflow.Name,
		"version":    cfg.Orderflow.Version,
		"env":        env,
		"config":     path,
		"instrument": cfg.Instrument,
		"debug":      cfg.Debug,
	}).Info("starting orderflow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.CloudWatch.Enabled {
		if err := logger.InitCloudWatch(ctx, logger.CloudWatchOptions{
			Region:          cfg.CloudWatch.Region,
			Namespace:       cfg.CloudWatch.Namespace,
			Dashboard:       cfg.CloudWatch.Dashboard,
			AccessKeyID:     cfg.CloudWatch.AccessKeyID,
			SecretAccessKey: cfg.CloudWatch.SecretAccessKey,
		}); err != nil {
			log.WithError(err).Warn("CloudWatch publishing disabled")
		}
	}
	logger.StartReport(ctx, log, cfg.Metrics.ReportInterval)

	metrics.Init()
	var wg sync.WaitGroup
	if cfg.Metrics.Address != "" {
		metricsSrv, err := metrics.Listen(cfg.Metrics.Address)
		if err != nil {
			log.WithError(err).Error("failed to start metrics endpoint")
			os.Exit(1)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := metricsSrv.Serve(ctx); err != nil {
				log.WithError(err).Warn("metrics endpoint stopped")
			}
		}()
	}

	channels := channel.NewChannels(cfg.Channels.InboundBuffer, cfg.Channels.MergedBuffer)
	channels.StartMetricsReporting(ctx, cfg.Metrics.ReportInterval)
	metrics.StartChannelSizeMetrics(ctx, channels, time.Second)

	aggregator := processor.NewAggregator(cfg, channels)
	distributor := processor.NewDistributor(cfg, channels)
	server := grpcserver.New(distributor, cfg)

	if err := server.Listen(); err != nil {
		log.WithError(err).Error("failed to bind grpc endpoint")
		os.Exit(1)
	}

	// The merge and publish loops stop when their input closes, so they get
	// a context that outlives the sources.
	pipelineCtx, pipelineCancel := context.WithCancel(context.Background())
	defer pipelineCancel()
	sourceCtx, sourceCancel := context.WithCancel(ctx)
	defer sourceCancel()
	serverCtx, serverCancel := context.WithCancel(context.Background())
	defer serverCancel()

	if err := aggregator.Start(pipelineCtx); err != nil {
		log.WithError(err).Error("aggregator failed to start")
		os.Exit(1)
	}
	if err := distributor.Start(pipelineCtx); err != nil {
		log.WithError(err).Error("distributor failed to start")
		os.Exit(1)
	}

	var kafkaWriter *writer.KafkaWriter
	if cfg.Kafka.Enabled {
		kafkaWriter, err = writer.NewKafkaWriter(cfg, distributor)
		if err != nil {
			log.WithError(err).Error("failed to create kafka writer")
			os.Exit(1)
		}
		if err := kafkaWriter.Start(pipelineCtx); err != nil {
			log.WithError(err).Warn("kafka writer failed to start")
			kafkaWriter = nil
		}
	} else {
		log.WithComponent("main").Info("Kafka sink disabled; skipping writer")
	}

	if dash := dashboard.NewServer(cfg, log, aggregator, distributor, channels); dash != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := dash.Run(ctx); err != nil {
				log.WithError(err).Warn("dashboard stopped")
			}
		}()
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(serverCtx)
	}()

	var sources []reader.Source
	if cfg.Source.Binance.Enabled {
		binance.UseStreamEndpoint(cfg.Source.Binance.URL)
		sources = append(sources, binance.NewDepth(cfg, channels))
	}
	if cfg.Source.Bitstamp.Enabled {
		sources = append(sources, bitstamp.NewBook(cfg, channels))
	}
	if cfg.Source.Bybit.Enabled {
		sources = append(sources, bybit.NewOrderbook(cfg, channels))
	}
	for _, src := range sources {
		if err := src.Start(sourceCtx); err != nil {
			log.WithError(err).WithFields(logger.Fields{"source": src.Name()}).Warn("source failed to start")
		}
	}

	log.WithFields(logger.Fields{
		"sources": len(sources),
		"address": server.Addr().String(),
	}).Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	serverStopped := false
	select {
	case sig := <-sigChan:
		log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")
	case err := <-serveErr:
		serverStopped = true
		if err != nil {
			log.WithError(err).Error("grpc server failed")
			exitCode = 1
			if errors.Is(err, grpcserver.ErrBind) {
				os.Exit(1)
			}
		}
	}

	log.Info("starting graceful shutdown")

	// Sources first, then the inbound queue. Closing it ends the merge loop,
	// which closes the merged queue, which ends the publish loop and every
	// subscription.
	sourceCancel()
	for _, src := range sources {
		log.WithFields(logger.Fields{"source": src.Name()}).Info("stopping source")
		src.Stop()
	}
	channels.CloseRaw()

	log.Info("stopping aggregator")
	aggregator.Stop()

	log.Info("stopping distributor")
	distributor.Stop()

	if kafkaWriter != nil {
		log.Info("stopping kafka writer")
		kafkaWriter.Stop()
	}

	serverCancel()
	if !serverStopped {
		select {
		case <-serveErr:
		case <-time.After(cfg.GRPC.ShutdownTimeout + time.Second):
			log.Warn("grpc server shutdown timeout exceeded")
		}
	}

	pipelineCancel()
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("graceful shutdown completed")
	case <-time.After(30 * time.Second):
		log.Warn("graceful shutdown timeout exceeded")
	}

	log.Info("orderflow stopped")
	os.Exit(exitCode)
}

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mdzesseis/treelog"
	"github.com/mdzesseis/treelog/filebackend"
	"github.com/mdzesseis/treelog/httpapi"
	"github.com/mdzesseis/treelog/internal/config"
)

func main() {
	var configFile string
	flag.StringVar(&configFile, "config", "", "Path to configuration file")
	flag.Parse()

	if configFile == "" {
		if env := os.Getenv("TREELOG_CONFIG_FILE"); env != "" {
			configFile = env
		}
	}

	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "treelogd: failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logrus.New()
	if level, err := logrus.ParseLevel(cfg.App.LogLevel); err == nil {
		logger.SetLevel(level)
	}
	if cfg.App.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("treelogd: exiting with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *logrus.Logger) error {
	writer, err := filebackend.NewWriter(filebackend.WriterConfig{
		BasePath:             cfg.Backend.BasePath,
		NumFlowsPerPartition: cfg.Backend.NumFlowsPerPartition,
		NumConcurrentWrites:  cfg.Backend.NumConcurrentWrites,
		Compress:             cfg.Backend.Compress,
		Logger:               logger,
	})
	if err != nil {
		return fmt.Errorf("constructing file backend writer: %w", err)
	}

	debounce, err := time.ParseDuration(cfg.Logger.Debounce)
	if err != nil {
		return fmt.Errorf("parsing logger.debounce: %w", err)
	}

	opts := []treelog.Option{
		treelog.WithDebounce(debounce),
		treelog.WithMaxBatchSize(cfg.Logger.MaxBatchSize),
		treelog.WithSilent(cfg.Logger.Silent),
		treelog.WithLogger(logger),
	}
	if cfg.Logger.QueueCapacity > 0 {
		opts = append(opts, treelog.WithQueueCapacity(cfg.Logger.QueueCapacity))
	}

	tl := treelog.NewTreeLogger(cfg.Logger.RootName, writer, opts...)
	ctx, closeLogger := tl.Enter(context.Background())
	defer func() {
		if err := closeLogger(); err != nil {
			logger.WithError(err).Warn("treelogd: error flushing logger on shutdown")
		}
	}()

	treelog.Log(ctx, "treelogd started", treelog.WithMessageType(treelog.MessageTypeSystem))

	var httpServer *http.Server
	if cfg.HTTPAPI.Enabled {
		reader, err := filebackend.NewReader(filebackend.ReaderConfig{
			BasePath: cfg.Backend.BasePath,
			Logger:   logger,
		})
		if err != nil {
			return fmt.Errorf("constructing file backend reader: %w", err)
		}

		watchCtx, cancelWatch := context.WithCancel(context.Background())
		defer cancelWatch()
		go func() {
			if err := reader.Watch(watchCtx); err != nil && watchCtx.Err() == nil {
				logger.WithError(err).Warn("treelogd: reader watch loop exited")
			}
		}()

		api := httpapi.NewServer(reader, logger)
		httpServer = &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.HTTPAPI.Host, cfg.HTTPAPI.Port),
			Handler: api,
		}
		go func() {
			logger.WithField("addr", httpServer.Addr).Info("treelogd: starting http api")
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.WithError(err).Error("treelogd: http api server failed")
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("treelogd: shutdown signal received")

	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("treelogd: http api shutdown error")
		}
	}

	return nil
}

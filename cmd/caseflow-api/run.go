package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	apiserver "github.com/caseflow/caseflow/internal/api_server"
	"github.com/caseflow/caseflow/internal/config"
	"github.com/caseflow/caseflow/internal/docgen"
	"github.com/caseflow/caseflow/internal/events"
	"github.com/caseflow/caseflow/internal/orchestrator"
	"github.com/caseflow/caseflow/internal/statuscache"
	"github.com/caseflow/caseflow/internal/stream"
	"github.com/caseflow/caseflow/pkg/log"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the case intake api",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.New()
		if err != nil {
			return err
		}

		logger := log.InitLog(log.Level(cfg.Service.LogLevel))
		defer func() { _ = logger.Sync() }()
		undo := zap.ReplaceGlobals(logger)
		defer undo()

		zap.S().Named("api").Info("Starting API service")
		defer zap.S().Named("api").Info("API service stopped")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
		defer cancel()

		cache := statuscache.NewCache(cfg.Cache.TTL)
		go cache.RunSweeper(ctx, cfg.Cache.SweepInterval)

		var writer events.Writer = &events.StdoutWriter{}
		if len(cfg.Service.Kafka.Brokers) > 0 {
			writer, err = events.NewKafkaWriter(cfg.Service.Kafka.Brokers, cfg.Service.Kafka.ClientID)
			if err != nil {
				zap.S().Named("api").Fatalw("failed to connect to kafka", "error", err)
			}
		}
		opts := []events.ProducerOptions{}
		if cfg.Service.Kafka.Topic != "" {
			opts = append(opts, events.WithOutputTopic(cfg.Service.Kafka.Topic))
		}
		producer := events.NewEventProducer(writer, opts...)
		defer func() { _ = producer.Close() }()

		generationClient := docgen.NewClient(docgen.Config{
			ApiUrl:         cfg.Docgen.ApiUrl,
			ApiToken:       cfg.Docgen.ApiToken,
			CallbackUrl:    cfg.Docgen.CallbackUrl,
			CallbackSeed:   cfg.Docgen.CallbackSeed,
			AttemptTimeout: cfg.Docgen.AttemptTimeout,
		})

		o := orchestrator.New(cache, generationClient, producer, orchestrator.Settings{
			MaxRetries:   cfg.Docgen.MaxRetries,
			RetryBackoff: cfg.Docgen.RetryBackoff,
			PollInterval: cfg.Docgen.PollInterval,
		})
		streamServer := stream.NewServer(cache, cfg.Stream.HeartbeatInterval)

		go func() {
			defer cancel()
			listener, err := newListener(cfg.Service.Address)
			if err != nil {
				zap.S().Named("api").Fatalw("creating listener", "error", err)
			}

			server := apiserver.New(cfg, o, streamServer, listener)
			if err := server.Run(ctx); err != nil {
				zap.S().Named("api").Fatalw("error running server", "error", err)
			}
		}()

		go func() {
			defer cancel()
			listener, err := newListener(cfg.Service.MetricsAddress)
			if err != nil {
				zap.S().Named("metrics").Fatalw("creating listener", "error", err)
			}

			metricsServer := apiserver.NewMetricServer(cfg.Service.MetricsAddress, listener)
			if err := metricsServer.Run(ctx); err != nil {
				zap.S().Named("metrics").Fatalw("error running metrics server", "error", err)
			}
		}()

		<-ctx.Done()
		return nil
	},
}

func newListener(address string) (net.Listener, error) {
	if address == "" {
		address = "localhost:0"
	}
	return net.Listen("tcp", address)
}

package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"example.com/timelinefeed/cmd/server"
	"example.com/timelinefeed/cmd/worker"
	appkafka "example.com/timelinefeed/internal/broker"
	"example.com/timelinefeed/internal/engine"
	config "example.com/timelinefeed/internal/init"
	"example.com/timelinefeed/internal/store"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		log.Fatal(err)
	}
}

// newRootCommand wires the server and worker subcommands. The bare command
// runs whichever mode MODE selects.
func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "timelinefeed",
		Short:         "Timeline aggregation service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run("")
		},
	}

	cmd.PersistentFlags().String("addr", "", "HTTP listen address (overrides SERVER_ADDR)")
	cmd.PersistentFlags().Int("workers", 0, "journal worker goroutines (overrides WORKER_COUNT)")
	_ = viper.BindPFlag("SERVER_ADDR", cmd.PersistentFlags().Lookup("addr"))
	_ = viper.BindPFlag("WORKER_COUNT", cmd.PersistentFlags().Lookup("workers"))

	cmd.AddCommand(&cobra.Command{
		Use:   "server",
		Short: "Serve the timeline API over HTTP",
		RunE:  func(cmd *cobra.Command, args []string) error { return run("server") },
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "worker",
		Short: "Journal activity events from Kafka into Cassandra",
		RunE:  func(cmd *cobra.Command, args []string) error { return run("worker") },
	})
	return cmd
}

// run starts the given mode; an empty mode falls back to the configured one.
func run(mode string) error {
	// Initialize application configuration
	cfg := config.Init()
	if mode == "" {
		mode = cfg.Mode
	}

	// Configure Kafka client parameters
	kafkaCfg := appkafka.KafkaConfig{
		Brokers:      []string{cfg.KafkaBroker},
		Topic:        cfg.KafkaTopic,
		Partition:    cfg.KafkaPartition,
		GroupID:      cfg.KafkaGroupID,
		WriteTimeout: cfg.KafkaWriteTO,
		ReadTimeout:  cfg.KafkaReadTO,
	}

	// Setup OS signal handling for graceful shutdown (SIGINT, SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch mode {
	case "server":
		return runServer(ctx, cfg, kafkaCfg)
	case "worker":
		return runWorker(ctx, cfg, kafkaCfg)
	default:
		return fmt.Errorf("unknown mode: %s", mode)
	}
}

func runServer(ctx context.Context, cfg *config.Config, kafkaCfg appkafka.KafkaConfig) error {
	if cfg.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET must be set in server mode")
	}

	eng := engine.New()

	// Rebuild timelines from the journal before accepting traffic
	if cfg.ReplayOnStart {
		st, err := store.New()
		if err != nil {
			return fmt.Errorf("cassandra connection failed: %w", err)
		}
		err = server.Replay(eng, st)
		st.Close()
		if err != nil {
			return fmt.Errorf("journal replay failed: %w", err)
		}
	}

	// Initialize Kafka writer for server mode
	kafkaWriter, err := appkafka.NewKafkaWriter(kafkaCfg)
	if err != nil {
		return fmt.Errorf("kafka writer init failed: %w", err)
	}
	defer kafkaWriter.Close()

	// Start the server that publishes activity and serves feeds
	server.Run(ctx, server.New(eng, kafkaWriter, []byte(cfg.JWTSecret)), cfg)
	log.Println("Shutdown completed")
	return nil
}

func runWorker(ctx context.Context, cfg *config.Config, kafkaCfg appkafka.KafkaConfig) error {
	// Initialize Cassandra store connection
	st, err := store.New()
	if err != nil {
		return fmt.Errorf("cassandra connection failed: %w", err)
	}

	// Initialize Kafka reader for worker mode
	kafkaReader := appkafka.NewKafkaReader(kafkaCfg)

	// Start the worker that reads activity from Kafka and journals it
	w := worker.New(st, kafkaReader, cfg.WorkerCount, cfg.WorkerQueueSize)
	w.Run(ctx)
	if err := w.Close(); err != nil {
		log.Printf("worker close: %v", err)
	}
	log.Println("Shutdown completed")
	return nil
}

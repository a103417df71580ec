package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/spf13/cobra"

	"mini-rpa/internal/orchestrator/events"
	orchKafka "mini-rpa/internal/orchestrator/kafka"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Tail dispatch events from Kafka",
	Long: `Print every dispatch event as one JSON line until interrupted.
Brokers, topic and consumer group come from the kafka.* settings.`,
	Args: cobra.NoArgs,
	RunE: runEvents,
}

func init() {
	rootCmd.AddCommand(eventsCmd)
}

func runEvents(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	reader, err := orchKafka.NewConsumer(cfg.Kafka)
	if err != nil {
		return err
	}
	defer func() {
		if err := reader.Close(); err != nil {
			hlog.Warnf("closing kafka reader: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	enc := json.NewEncoder(cmd.OutOrStdout())
	return orchKafka.Consume(ctx, reader, func(ev events.DispatchEvent) {
		if err := enc.Encode(ev); err != nil {
			hlog.Warnf("writing event %s: %v", ev.DispatchID, err)
		}
	})
}

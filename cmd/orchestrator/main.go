package main

import (
	"context"
	"fmt"
	"os"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"gorm.io/gorm/logger"

	"mini-rpa/internal/orchestrator/api"
	"mini-rpa/internal/orchestrator/client"
	orchDB "mini-rpa/internal/orchestrator/db"
	orchKafka "mini-rpa/internal/orchestrator/kafka"
	"mini-rpa/internal/orchestrator/services"
	"mini-rpa/pkg/auth"
	"mini-rpa/pkg/config"
	gorm_db "mini-rpa/pkg/db"
	"mini-rpa/pkg/metrics"
	"mini-rpa/pkg/ratelimit"
)

var (
	v          = config.New()
	configFile string
)

var rootCmd = &cobra.Command{
	Use:   "orchestrator",
	Short: "Accept dispatch requests and relay them to agents",
	Long: `Accepts job dispatches on POST /dispatch, encrypts the run-as credential
with the shared key and relays the job to <agent_url>/run.

The shared key is read from MINIRPA_SHARED_KEY (see "rpactl keygen").`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	config.BindFlags(rootCmd, v, &configFile)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(v, configFile)
	if err != nil {
		return err
	}
	hlog.SetOutput(os.Stdout)
	cfg.ApplyLogLevel()

	key, err := cfg.Key()
	if err != nil {
		return err
	}

	gormDB, err := gorm_db.NewGormDB(cfg.DB, logger.Warn)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := gorm_db.AutoMigrate(gormDB, &orchDB.DispatchRecord{}); err != nil {
		return err
	}
	store := orchDB.NewStore(gormDB)

	var publisher services.Publisher
	producer := orchKafka.NewProducer(cfg.Kafka)
	if producer != nil {
		publisher = orchKafka.NewPublisher(producer)
	} else {
		hlog.Info("No Kafka brokers configured; dispatch events are disabled.")
	}

	tlsConfig, err := cfg.Agent.TLSConfig()
	if err != nil {
		return err
	}
	agentClient, err := client.NewAgentClient(cfg.Agent.Timeout, auth.NewSigner(cfg.Agent.AuthSecret, cfg.Agent.TokenTTL),
		client.WithTLSConfig(tlsConfig))
	if err != nil {
		return err
	}

	m := metrics.MustNew(prometheus.DefaultRegisterer)
	svc := services.NewDispatchService(key, agentClient, store, publisher, m)
	limiter := ratelimit.New(ratelimit.Config{
		RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		Burst:             cfg.RateLimit.Burst,
	})

	h := server.Default(server.WithHostPorts(cfg.Server.Addr), server.WithExitWaitTime(cfg.Server.ExitWait))
	api.Register(h, api.NewDispatchHandler(svc, store), limiter, prometheus.DefaultGatherer)

	h.OnShutdown = append(h.OnShutdown, func(ctx context.Context) {
		if producer != nil {
			if err := producer.Close(); err != nil {
				hlog.Errorf("Kafka producer close error: %v", err)
			} else {
				hlog.Info("Kafka producer closed.")
			}
		}
		if err := gorm_db.Close(gormDB); err != nil {
			hlog.Errorf("Database close error: %v", err)
		}
		hlog.Info("Orchestrator gracefully shut down.")
	})

	hlog.Infof("Orchestrator fully initialized and starting Hertz server on %s (agent timeout %s)...", cfg.Server.Addr, cfg.Agent.Timeout)
	h.Spin()
	return nil
}

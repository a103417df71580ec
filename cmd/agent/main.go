package main

import (
	"context"
	"fmt"
	"os"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"mini-rpa/internal/agent/api"
	"mini-rpa/internal/agent/hostsched"
	"mini-rpa/internal/agent/services"
	"mini-rpa/internal/agent/workspace"
	"mini-rpa/pkg/config"
	"mini-rpa/pkg/metrics"
)

// DefaultAgentAddr is where agents listen unless configured otherwise.
const DefaultAgentAddr = ":5001"

var (
	v          = config.New()
	configFile string
)

var rootCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run dispatched jobs as scheduled tasks on this host",
	Long: `Accepts job payloads on POST /run, decrypts the run-as credential with the
shared key, writes the script and its launcher to a working directory and
registers and starts a scheduled task for it.

Facilities:
  schtasks   Windows Task Scheduler (default on Windows)
  gocron     in-process scheduler, tasks run as the agent user`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	v.SetDefault("server.addr", DefaultAgentAddr)
	config.BindFlags(rootCmd, v, &configFile)
	rootCmd.PersistentFlags().String("facility", "", "Host scheduler facility (schtasks|gocron)")
	_ = v.BindPFlag("host.facility", rootCmd.PersistentFlags().Lookup("facility"))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

type shutdowner interface {
	Shutdown() error
}

func newFacility(cfg config.HostConfig) (hostsched.Facility, error) {
	switch cfg.Facility {
	case "schtasks":
		return hostsched.NewSchtasksFacility(nil), nil
	case "gocron":
		return hostsched.NewGocronFacility(nil, cfg.AllowOverwrite)
	default:
		return nil, fmt.Errorf("unsupported host.facility %q", cfg.Facility)
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

	facility, err := newFacility(cfg.Host)
	if err != nil {
		return err
	}
	ws, err := workspace.NewManager(cfg.Host.WorkdirRoot, cfg.Host.Runtime, cfg.Host.Launcher)
	if err != nil {
		return err
	}

	m := metrics.MustNew(prometheus.DefaultRegisterer)
	svc := services.NewRunService(key, ws, hostsched.NewReconciler(facility, m), cfg.Host.TriggerDelay, m)

	h := server.Default(server.WithHostPorts(cfg.Server.Addr), server.WithExitWaitTime(cfg.Server.ExitWait))
	api.Register(h, api.NewRunHandler(svc), cfg.Agent.AuthSecret, prometheus.DefaultGatherer)

	h.OnShutdown = append(h.OnShutdown, func(ctx context.Context) {
		if s, ok := facility.(shutdowner); ok {
			if err := s.Shutdown(); err != nil {
				hlog.Errorf("Error shutting down %s facility: %v", cfg.Host.Facility, err)
			}
		}
		hlog.Info("Agent gracefully shut down.")
	})

	if cfg.Agent.AuthSecret == "" {
		hlog.Warn("No agent auth secret configured; /run accepts unauthenticated requests.")
	}
	hlog.Infof("Agent starting Hertz server on %s (facility=%s, launcher=%s, runtime=%s)...",
		cfg.Server.Addr, cfg.Host.Facility, cfg.Host.Launcher, cfg.Host.Runtime)
	h.Spin()
	return nil
}

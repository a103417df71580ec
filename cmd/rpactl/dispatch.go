package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app/client"
	hconfig "github.com/cloudwego/hertz/pkg/common/config"
	"github.com/cloudwego/hertz/pkg/network/standard"
	"github.com/cloudwego/hertz/pkg/protocol"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/spf13/cobra"

	"mini-rpa/internal/models"
	"mini-rpa/pkg/config"
)

var (
	dispatchOrchestrator string
	dispatchAgentURL     string
	dispatchTask         string
	dispatchUsername     string
	dispatchScript       string
	dispatchWorkingDir   string
	dispatchInteractive  bool
	dispatchTimeout      time.Duration
	dispatchCAFile       string
	dispatchInsecure     bool
)

// passwordEnv holds the run-as password so it never shows up in shell history.
const passwordEnv = config.EnvPrefix + "_DISPATCH_PASSWORD"

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Send a script to an agent through the orchestrator",
	Long: `Send a dispatch request to an orchestrator.

The run-as password is read from ` + passwordEnv + `.

Examples:
  rpactl dispatch --agent-url http://host:5001 --task Demo_Run \
      --username 'HOST\user' --script automation_example.py --interactive`,
	Args: cobra.NoArgs,
	RunE: runDispatch,
}

func init() {
	rootCmd.AddCommand(dispatchCmd)
	f := dispatchCmd.Flags()
	f.StringVar(&dispatchOrchestrator, "orchestrator", "http://127.0.0.1:8000", "Orchestrator base URL")
	f.StringVar(&dispatchAgentURL, "agent-url", "", "Agent base URL (required)")
	f.StringVar(&dispatchTask, "task", "", "Scheduled task name (required)")
	f.StringVar(&dispatchUsername, "username", "", "Run-as account, e.g. DOMAIN\\user (required)")
	f.StringVar(&dispatchScript, "script", "", "Path to the script to run (required)")
	f.StringVar(&dispatchWorkingDir, "working-dir", "", "Working directory on the agent host")
	f.BoolVar(&dispatchInteractive, "interactive", false, "Pass --interactive to the script")
	f.DurationVar(&dispatchTimeout, "timeout", 45*time.Second, "Request timeout")
	f.StringVar(&dispatchCAFile, "ca-file", "", "PEM roots for an https orchestrator")
	f.BoolVar(&dispatchInsecure, "insecure", false, "Skip TLS certificate verification")
	for _, name := range []string{"agent-url", "task", "username", "script"} {
		_ = dispatchCmd.MarkFlagRequired(name)
	}
}

func runDispatch(cmd *cobra.Command, args []string) error {
	if _, err := loadConfig(); err != nil {
		return err
	}
	password, ok := os.LookupEnv(passwordEnv)
	if !ok {
		return fmt.Errorf("%s is not set", passwordEnv)
	}
	script, err := os.ReadFile(dispatchScript)
	if err != nil {
		return fmt.Errorf("read script: %w", err)
	}

	body, err := json.Marshal(models.DispatchRequest{
		AgentURL:        dispatchAgentURL,
		TaskName:        dispatchTask,
		Username:        dispatchUsername,
		Password:        password,
		ScriptText:      string(script),
		WorkingDir:      dispatchWorkingDir,
		InteractiveHint: dispatchInteractive,
	})
	if err != nil {
		return err
	}

	opts := []hconfig.ClientOption{client.WithDialer(standard.NewDialer())}
	tlsConfig, err := config.ClientTLSConfig(dispatchCAFile, dispatchInsecure)
	if err != nil {
		return err
	}
	if tlsConfig != nil {
		opts = append(opts, client.WithTLSConfig(tlsConfig))
	}
	c, err := client.NewClient(opts...)
	if err != nil {
		return err
	}
	req, resp := protocol.AcquireRequest(), protocol.AcquireResponse()
	defer protocol.ReleaseRequest(req)
	defer protocol.ReleaseResponse(resp)
	req.SetMethod(consts.MethodPost)
	req.SetRequestURI(strings.TrimRight(dispatchOrchestrator, "/") + "/dispatch")
	req.Header.SetContentTypeBytes([]byte(consts.MIMEApplicationJSON))
	req.SetBody(body)

	if err := c.DoTimeout(context.Background(), req, resp, dispatchTimeout); err != nil {
		return fmt.Errorf("contact orchestrator: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), resp.StatusCode(), string(resp.Body()))
	if resp.StatusCode() >= 300 {
		return fmt.Errorf("dispatch failed with status %d", resp.StatusCode())
	}
	return nil
}

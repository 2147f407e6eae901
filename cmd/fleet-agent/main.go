package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuemby/fleet/pkg/agent"
	"github.com/cuemby/fleet/pkg/config"
	"github.com/cuemby/fleet/pkg/embedded"
	"github.com/cuemby/fleet/pkg/log"
	"github.com/cuemby/fleet/pkg/metrics"
	"github.com/cuemby/fleet/pkg/runtimeadapter"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "fleet-agent",
	Short: "fleet-agent runs the workload-executing side of a Fleet cluster",
	Long: `fleet-agent polls a fleet-server's desired-state endpoint, scopes
it to its own workloads, runs the result through the dependency scheduler,
and drives containerd to start and stop whatever clears its preconditions.`,
	Version: Version,
	RunE:    runAgent,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"fleet-agent version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().Bool("external-containerd", false, "Use external containerd instead of embedded (requires containerd daemon running)")
	rootCmd.Flags().StringVar(&configPath, "config", "/etc/fleet/agent.yaml", "Path to agent config file")

	cobra.OnInitialize(initLogging)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

func runAgent(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadAgentConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	metrics.SetVersion(Version)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	useExternal, _ := cmd.Flags().GetBool("external-containerd")
	socketPath := cfg.ContainerdSocket
	if !useExternal {
		containerdMgr, err := embedded.EnsureContainerd(ctx, "/var/lib/fleet-agent", false)
		if err != nil {
			return fmt.Errorf("start embedded containerd: %w", err)
		}
		defer containerdMgr.Stop()
		socketPath = containerdMgr.GetSocketPath()
	}
	metrics.RegisterComponent("containerd", true, socketPath)

	adapter, err := runtimeadapter.NewContainerdAdapter(socketPath)
	if err != nil {
		return fmt.Errorf("create containerd adapter: %w", err)
	}
	defer adapter.Close()

	a := agent.New(agent.Config{
		AgentName:    cfg.AgentName,
		ServerAddr:   cfg.ServerAddr,
		PollInterval: cfg.PollInterval,
		StopTimeout:  cfg.StopTimeout,
	}, adapter, metrics.NewSchedulerCollector())
	metrics.RegisterComponent("agent", true, "polling "+cfg.ServerAddr)

	log.Info(fmt.Sprintf("fleet-agent %s polling %s", cfg.AgentName, cfg.ServerAddr))
	return a.Run(ctx)
}

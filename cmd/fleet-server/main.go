package main

import (
	"fmt"
	"os"

	"github.com/cuemby/fleet/pkg/api"
	"github.com/cuemby/fleet/pkg/cluster"
	"github.com/cuemby/fleet/pkg/config"
	"github.com/cuemby/fleet/pkg/log"
	"github.com/cuemby/fleet/pkg/metrics"
	"github.com/cuemby/fleet/pkg/security"
	"github.com/cuemby/fleet/pkg/storage"
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
	Use:   "fleet-server",
	Short: "fleet-server runs a manager node in a Fleet cluster",
	Long: `fleet-server holds the Raft-replicated desired state for a Fleet
cluster: it admits proposed states through the dependency-graph check
before they ever reach the log, and serves agents and operators over a
plain HTTP control plane plus an mTLS gRPC health endpoint.`,
	Version: Version,
	RunE:    runServer,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"fleet-server version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.Flags().StringVar(&configPath, "config", "/etc/fleet/server.yaml", "Path to server config file")

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

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadServerConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	metrics.SetVersion(Version)

	mgr, err := cluster.NewManager(&cluster.Config{
		NodeID:   cfg.NodeID,
		BindAddr: cfg.BindAddr,
		DataDir:  cfg.DataDir,
	})
	if err != nil {
		return fmt.Errorf("create cluster manager: %w", err)
	}

	if err := mgr.Bootstrap(); err != nil {
		return fmt.Errorf("bootstrap cluster: %w", err)
	}
	metrics.RegisterComponent("raft", true, "bootstrapped")

	if err := ensureManagerCert(mgr.NodeID(), cfg.DataDir); err != nil {
		return fmt.Errorf("ensure manager certificate: %w", err)
	}
	metrics.RegisterComponent("certificate", true, "issued")

	grpcServer, err := api.NewServer(mgr)
	if err != nil {
		return fmt.Errorf("create gRPC server: %w", err)
	}
	go func() {
		if err := grpcServer.Start(cfg.APIAddr); err != nil {
			log.Errorf("gRPC server stopped", err)
		}
	}()

	httpServer := api.NewHealthServer(mgr)
	metrics.RegisterComponent("http", true, "serving")

	go func() {
		if err := httpServer.StartLocal(cfg.LocalSocket); err != nil {
			log.Errorf("local read-only socket stopped", err)
		}
	}()
	metrics.RegisterComponent("local-socket", true, cfg.LocalSocket)

	log.Info(fmt.Sprintf("fleet-server listening: grpc=%s http=%s local=%s", cfg.APIAddr, cfg.HTTPAddr, cfg.LocalSocket))
	return httpServer.Start(cfg.HTTPAddr)
}

// ensureManagerCert initialises the cluster CA on first boot (or loads it
// back from storage on a restart) and issues this node its own manager
// certificate if one isn't already on disk.
func ensureManagerCert(nodeID, dataDir string) error {
	store, err := storage.NewBoltStore(dataDir)
	if err != nil {
		return fmt.Errorf("open CA store: %w", err)
	}
	defer store.Close()

	ca := security.NewCertAuthority(store)
	if err := ca.LoadFromStore(); err != nil {
		if err := ca.Initialize(); err != nil {
			return fmt.Errorf("initialize CA: %w", err)
		}
		if err := ca.SaveToStore(); err != nil {
			return fmt.Errorf("persist CA: %w", err)
		}
	}

	certDir, err := security.GetCertDir("manager", nodeID)
	if err != nil {
		return fmt.Errorf("resolve cert dir: %w", err)
	}
	if security.CertExists(certDir) {
		return nil
	}

	cert, err := ca.IssueNodeCertificate(nodeID, "manager", []string{nodeID}, nil)
	if err != nil {
		return fmt.Errorf("issue manager certificate: %w", err)
	}
	if err := security.SaveCertToFile(cert, certDir); err != nil {
		return fmt.Errorf("save manager certificate: %w", err)
	}
	return security.SaveCACertToFile(ca.GetRootCACert(), certDir)
}

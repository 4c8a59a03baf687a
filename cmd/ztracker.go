package cmd

import (
	"fmt"

	"github.com/al002/ztracker/internal/config"
	ztlog "github.com/al002/ztracker/internal/log"
	"github.com/al002/ztracker/internal/version"
	"github.com/spf13/cobra"
)

var (
	cfgFile     string
	cfgRegistry *config.Registry
	cfg         *config.Config
	log         *ztlog.Logger

	rootCmd = &cobra.Command{
		Use:               "ztracker",
		Short:             "Ask BitTorrent UDP trackers for peers",
		Version:           version.Version,
		SilenceUsage:      true,
		PersistentPreRunE: initConfig,
	}
)

func Execute() error {
	defer func() {
		if log != nil {
			if err := log.Close(); err != nil {
				fmt.Printf("Failed to close logger: %v\n", err)
			}
		}
	}()
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.ztracker/config.yaml)")

	rootCmd.AddCommand(announceCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(validateCmd)
}

func initConfig(cmd *cobra.Command, args []string) error {
	var err error

	cfgRegistry = config.NewRegistry()
	cfg, err = cfgRegistry.LoadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("Failed to load config: %w", err)
	}

	log, err = ztlog.New(&cfg.Log)
	if err != nil {
		return fmt.Errorf("Failed to create logger: %w", err)
	}

	cfgRegistry.OnChange(func(name string) {
		log.Info("Config file changed, restart to apply", "config_file", name)
	})

	log.Debug("Configuration loaded successfully",
		"version", version.String(),
		"config_file", cfgRegistry.ConfigFile(),
		"listen_port", cfg.ListenPort,
		"bind_addr", cfg.Tracker.BindAddr,
		"base_timeout", cfg.Tracker.BaseTimeout,
		"max_retries", cfg.Tracker.MaxRetries,
		"max_parallel", cfg.Tracker.MaxParallel,
	)

	return nil
}

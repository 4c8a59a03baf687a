package cmd

import (
	"net"

	"github.com/al002/ztracker/internal/blocklist"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		log.Info("Starting validation...")

		conn, err := net.ListenPacket("udp4", cfg.Tracker.BindAddr)
		if err != nil {
			log.Error("Tracker bind address is not available", "bind_addr", cfg.Tracker.BindAddr, "error", err)
			return err
		}
		log.Info("Tracker bind address is available", "local_addr", conn.LocalAddr().String())
		conn.Close()

		if cfg.Tracker.BlocklistFile != "" {
			bl, err := blocklist.Load(cfg.Tracker.BlocklistFile)
			if err != nil {
				log.Error("Blocklist cannot be loaded", "file", cfg.Tracker.BlocklistFile, "error", err)
				return err
			}
			log.Info("Blocklist loaded", "rules", bl.Len())
		}

		log.Info("Validation completed successfully")
		return nil
	},
}

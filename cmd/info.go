package cmd

import (
	"fmt"
	"strings"

	"github.com/al002/ztracker/internal/metainfo"
	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info <file.torrent>",
	Short: "Print what a torrent file announces",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mi, err := metainfo.LoadFromFile(args[0])
		if err != nil {
			log.Error("parse torrent file error", "file", args[0], "error", err)
			return err
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "name       %s\n", mi.Name)
		fmt.Fprintf(w, "info hash  %s\n", mi.InfoHashHex())
		fmt.Fprintf(w, "length     %d\n", mi.Length)
		fmt.Fprintf(w, "private    %t\n", mi.Private)
		for i, tier := range mi.AnnounceList {
			fmt.Fprintf(w, "tier %d     %s\n", i, strings.Join(tier, " "))
		}
		fmt.Fprintf(w, "udp        %s\n", strings.Join(mi.UDPTrackers(), " "))

		return nil
	},
}

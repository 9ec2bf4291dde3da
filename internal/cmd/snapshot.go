package cmd

import "github.com/spf13/cobra"

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Manage persisted governor state",
}

func init() {
	snapshotCmd.AddCommand(snapshotListCmd)
	snapshotCmd.AddCommand(snapshotResetCmd)
	rootCmd.AddCommand(snapshotCmd)
}

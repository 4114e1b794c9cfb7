package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List snapshots, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		o, err := openOrchestrator()
		if err != nil {
			return err
		}
		defer o.Close()

		snaps, err := o.ListSnapshots(historyLimit)
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(snaps)
		}
		for _, s := range snaps {
			fmt.Printf("%s  %s  %s\n", s.ID.ShortID(), s.CreatedAt.Format("2006-01-02 15:04:05"), s.Message)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "maximum number of snapshots to list")
	rootCmd.AddCommand(historyCmd)
}

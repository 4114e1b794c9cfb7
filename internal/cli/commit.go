package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var commitNote string

var commitCmd = &cobra.Command{
	Use:   "commit",
	Short: "Force a snapshot of the current store state",
	RunE: func(cmd *cobra.Command, args []string) error {
		o, err := openOrchestrator()
		if err != nil {
			return err
		}
		defer o.Close()

		snap, err := o.Commit(commitNote)
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(snap)
		}
		fmt.Printf("Committed snapshot %s\n", snap.ID.ShortID())
		return nil
	},
}

func init() {
	commitCmd.Flags().StringVarP(&commitNote, "message", "m", "manual snapshot", "commit message")
	rootCmd.AddCommand(commitCmd)
}

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scribelab/chronicle/pkg/model"
)

var diffCmd = &cobra.Command{
	Use:   "diff <from-ref> <to-ref>",
	Short: "Show which units changed between two snapshots",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		o, err := openOrchestrator()
		if err != nil {
			return err
		}
		defer o.Close()

		entries, err := o.ViewDiff(model.Ref(args[0]), model.Ref(args[1]))
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(entries)
		}
		if len(entries) == 0 {
			fmt.Println("No changes.")
			return nil
		}
		for _, e := range entries {
			fmt.Printf("%-10s %-24s %d rows\n", e.ChangeKind, e.UnitName, e.AffectedRowCount)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(diffCmd)
}

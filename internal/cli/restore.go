package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scribelab/chronicle/pkg/model"
)

var restoreCmd = &cobra.Command{
	Use:   "restore <ref>",
	Short: "Replace the live store with a snapshot's contents",
	Long: `Restore rebuilds the project store from the referenced snapshot and
swaps it into place. History is never rewritten; the snapshot line is
preserved. Restore refuses to run while uncommitted changes are
outstanding - run "chronicle commit" first.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		o, err := openOrchestrator()
		if err != nil {
			return err
		}
		defer o.Close()

		ref := model.Ref(args[0])
		if err := o.Restore(ref); err != nil {
			return err
		}
		if !jsonOutput {
			fmt.Printf("Restored store from %s\n", ref)
		}
		return outputJSON(map[string]string{"restored": ref.String()})
	},
}

func init() {
	rootCmd.AddCommand(restoreCmd)
}

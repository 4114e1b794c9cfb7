package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Put the project store under automatic version control",
	RunE: func(cmd *cobra.Command, args []string) error {
		o, err := openOrchestrator()
		if err != nil {
			return err
		}
		defer o.Close()

		if err := o.Initialize(); err != nil {
			return err
		}

		head, err := o.ListSnapshots(1)
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(head[0])
		}
		fmt.Printf("Initialized version control, snapshot %s\n", head[0].ID.ShortID())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}

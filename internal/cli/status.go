package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show version-control state for the project store",
	RunE: func(cmd *cobra.Command, args []string) error {
		o, err := openOrchestrator()
		if err != nil {
			return err
		}
		defer o.Close()

		st, err := o.Status()
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(st)
		}

		fmt.Printf("State:       %s\n", st.State)
		if st.Head != nil {
			fmt.Printf("Head:        %s  %s\n", st.Head.ID.ShortID(), st.Head.Message)
		}
		fmt.Printf("Uncommitted: %v\n", st.UncommittedChanges)
		if st.DroppedEvents > 0 {
			fmt.Printf("Dropped:     %d notifications\n", st.DroppedEvents)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

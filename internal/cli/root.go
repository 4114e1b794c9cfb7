// Package cli implements the chronicle command line interface.
package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/scribelab/chronicle/internal/vcs"
	"github.com/scribelab/chronicle/pkg/config"
	"github.com/scribelab/chronicle/pkg/logging"
)

var (
	storePath  string
	jsonOutput bool

	rootCmd = &cobra.Command{
		Use:   "chronicle",
		Short: "chronicle - automatic version control for project stores",
		Long: `Chronicle keeps a project's SQLite store under automatic version
control: it serializes the store into diffable text units, commits them
to an append-only history, and restores any prior snapshot on demand.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&storePath, "store", "", "path to the project's SQLite store (required)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

// openOrchestrator builds an orchestrator for the --store flag,
// loading per-project config from the sibling .chronicle directory.
func openOrchestrator() (*vcs.Orchestrator, error) {
	if storePath == "" {
		return nil, fmt.Errorf("--store is required")
	}
	projectRoot := filepath.Dir(storePath)

	cfg, err := config.Load(projectRoot)
	if err != nil {
		return nil, err
	}
	logging.SetGlobal(logging.NewLogger(
		logging.Level(cfg.Logging.Level),
		logging.Format(cfg.Logging.Format),
	))

	return vcs.New(storePath, vcs.Options{Config: cfg})
}

// outputJSON prints v as JSON if --json flag is set.
func outputJSON(v any) error {
	if !jsonOutput {
		return nil
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

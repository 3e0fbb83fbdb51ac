package commands

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/cleared-dev/reconcile/internal/buildinfo"
	"github.com/cleared-dev/reconcile/internal/logger"
)

// envFile is loaded from the data directory before any command runs.
// Variables already set in the environment win.
const envFile = ".env"

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	var dataDir string

	rootCmd := &cobra.Command{
		Use:     "reconcile",
		Short:   "Import bank exports and reconcile them with the ledger",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", buildinfo.Version, buildinfo.Commit, buildinfo.Date),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := loadEnv(dataDir); err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cmd.SetContext(logger.WithContext(ctx, logger.New()))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "dir", ".", "data directory")

	rootCmd.AddCommand(
		newInitCommand(),
		newParseCommand(),
		newImportCommand(&dataDir),
		newBalanceCommand(&dataDir),
		newMappingsCommand(&dataDir),
		newCheckCommand(&dataDir),
	)

	return rootCmd
}

func loadEnv(dataDir string) error {
	err := godotenv.Load(filepath.Join(dataDir, envFile))
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("loading %s: %w", envFile, err)
}

func absDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}
	return abs, nil
}

package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/reconcile/internal/accounts"
	"github.com/cleared-dev/reconcile/internal/categories"
	"github.com/cleared-dev/reconcile/internal/config"
	"github.com/cleared-dev/reconcile/internal/gitops"
	"github.com/cleared-dev/reconcile/internal/payees"
)

func newInitCommand() *cobra.Command {
	var homeCurrency string
	var noGit bool

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new data directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			abs, err := absDir(dir)
			if err != nil {
				return err
			}
			return runInit(cmd.Context(), cmd.OutOrStdout(), abs, homeCurrency, !noGit)
		},
	}

	cmd.Flags().StringVar(&homeCurrency, "home-currency", "CHF", "ISO code of the home currency")
	cmd.Flags().BoolVar(&noGit, "no-git", false, "do not initialize a git repository")

	return cmd
}

func runInit(ctx context.Context, out io.Writer, dir, homeCurrency string, withGit bool) error {
	settingsPath := filepath.Join(dir, config.FileName)
	if _, err := os.Stat(settingsPath); err == nil {
		return fmt.Errorf("%s already initialized", dir)
	}

	dirs := []string{
		"accounts",
		"ledger",
		"rules",
		"logs",
		"import",
		filepath.Join("import", "processed"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(filepath.Join(dir, d), 0o755); err != nil {
			return fmt.Errorf("creating directory %s: %w", d, err)
		}
	}

	cfg := config.Default()
	cfg.HomeCurrency = homeCurrency
	cfg.Git.AutoCommit = withGit
	if err := config.Save(settingsPath, cfg); err != nil {
		return fmt.Errorf("writing settings: %w", err)
	}

	accts := accounts.DefaultAccounts()
	for i := range accts {
		accts[i].Currency = homeCurrency
	}
	if err := accounts.NewService(accts).Save(dir); err != nil {
		return fmt.Errorf("writing accounts: %w", err)
	}
	if err := categories.NewService(categories.DefaultChart()).Save(dir); err != nil {
		return fmt.Errorf("writing categories: %w", err)
	}
	if err := payees.Save(filepath.Join(dir, cfg.Mappings.Path), payees.NewMapping()); err != nil {
		return fmt.Errorf("writing payee mappings: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, ".gitignore"), []byte(".env\n"), 0o644); err != nil {
		return fmt.Errorf("writing .gitignore: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "import", ".gitkeep"), []byte{}, 0o644); err != nil {
		return fmt.Errorf("writing .gitkeep: %w", err)
	}

	if !withGit {
		fmt.Fprintf(out, "Initialized data directory at %s\n", dir)
		return nil
	}

	if err := gitops.Init(ctx, dir); err != nil {
		return err
	}
	author := gitops.Author{Name: cfg.Git.AuthorName, Email: cfg.Git.AuthorEmail}
	hash, err := gitops.Commit(ctx, dir, "init: data directory", author)
	if err != nil {
		return fmt.Errorf("initial commit: %w", err)
	}

	fmt.Fprintf(out, "Initialized data directory at %s (%s)\n", dir, hash)
	return nil
}

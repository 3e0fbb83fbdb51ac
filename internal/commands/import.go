package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cleared-dev/reconcile/internal/amount"
	"github.com/cleared-dev/reconcile/internal/gitops"
	"github.com/cleared-dev/reconcile/internal/importer"
	"github.com/cleared-dev/reconcile/internal/importlog"
	"github.com/cleared-dev/reconcile/internal/logger"
	"github.com/cleared-dev/reconcile/internal/model"
	"github.com/cleared-dev/reconcile/internal/pipeline"
	"github.com/cleared-dev/reconcile/internal/reconcile"
)

// multiCurrencyFormat is the bank format routed through the multi-currency path.
const multiCurrencyFormat = "revolut"

type importRun struct {
	root          string
	paths         []string // explicit files; empty scans import/
	parse         importer.Options
	account       string
	provider      string
	bankAccount   string
	cashAccount   string
	skipTransfers bool
	skipBalance   bool
	mode          reconcile.Mode
	now           func() time.Time
}

func newImportCommand(dataDir *string) *cobra.Command {
	var flags parseFlags
	var run importRun
	var commit bool

	cmd := &cobra.Command{
		Use:   "import [file...]",
		Short: "Import export files into the ledger (preview unless --commit)",
		Long: "Import parses each file and reconciles it with the ledger. Without file\n" +
			"arguments every supported file in <dir>/import/ is imported and moved to\n" +
			"import/processed/ after a commit. Multi-currency exports are routed to one\n" +
			"account per currency; other files need --account.",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := absDir(*dataDir)
			if err != nil {
				return err
			}
			run.root = root
			run.paths = args
			run.parse = flags.options()
			run.mode = reconcile.Preview
			if commit {
				run.mode = reconcile.Commit
			}
			run.now = time.Now
			return runImport(cmd.Context(), cmd.OutOrStdout(), run)
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&commit, "commit", false, "write to the ledger")
	cmd.Flags().StringVar(&run.account, "account", "", "import every file into this account")
	cmd.Flags().StringVar(&run.provider, "provider", pipeline.DefaultProvider, "multi-currency provider name")
	cmd.Flags().StringVar(&run.bankAccount, "bank-account", "", "counter account for top-ups and SWIFT transfers")
	cmd.Flags().StringVar(&run.cashAccount, "cash-account", "", "counter account for ATM withdrawals")
	cmd.Flags().BoolVar(&run.skipTransfers, "skip-transfers", false, "do not link transfer counter postings")
	cmd.Flags().BoolVar(&run.skipBalance, "skip-balance", false, "do not correct the balance from the file's closing balance")

	return cmd
}

type importFile struct {
	name    string
	path    string
	scanned bool
}

func importFiles(run importRun) ([]importFile, error) {
	if len(run.paths) == 0 {
		infos, err := importer.Scan(run.root)
		if err != nil {
			return nil, err
		}
		files := make([]importFile, len(infos))
		for i, fi := range infos {
			files[i] = importFile{name: fi.Name, path: fi.Path, scanned: true}
		}
		return files, nil
	}
	files := make([]importFile, len(run.paths))
	for i, p := range run.paths {
		files[i] = importFile{name: filepath.Base(p), path: p}
	}
	return files, nil
}

func runImport(ctx context.Context, out io.Writer, run importRun) error {
	log := logger.FromContext(ctx)

	ic, err := pipeline.Open(run.root)
	if err != nil {
		return err
	}
	files, err := importFiles(run)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Fprintln(out, "No files to import")
		return nil
	}

	runID := uuid.New()
	var entries []importlog.Entry
	failed := 0
	for _, f := range files {
		fmt.Fprintf(out, "== %s\n", f.name)
		entry, err := importOne(ctx, out, ic, run, f)
		entry.RunID = runID
		entry.Timestamp = run.now().UTC()
		entry.File = f.name
		entry.Mode = run.mode.String()
		entries = append(entries, entry)
		if err != nil {
			failed++
			fmt.Fprintf(out, "error: %v\n", err)
			log.Error().Err(err).Str("file", f.name).Msg("import failed")
			continue
		}
		if run.mode == reconcile.Commit && f.scanned {
			if err := importer.MarkProcessed(run.root, f.name); err != nil {
				return err
			}
		}
	}

	var invalid error
	if run.mode == reconcile.Commit {
		invalid = checkLedger(ctx, out, ic.Ledger)
		hash := commitDataDir(ctx, ic, run.root, len(files)-failed)
		for i := range entries {
			entries[i].CommitHash = hash
		}
		if err := importlog.Append(run.root, entries); err != nil {
			log.Warn().Err(err).Msg("failed to write import log")
		}
	} else {
		fmt.Fprintln(out, "Preview only, nothing written. Re-run with --commit to import.")
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(files))
	}
	return invalid
}

// importOne imports one file. The returned entry carries the counts even
// when the file fails.
func importOne(ctx context.Context, out io.Writer, ic *pipeline.ImportContext, run importRun, f importFile) (importlog.Entry, error) {
	var entry importlog.Entry

	parsed := importer.ParseFile(f.path, run.parse)
	entry.Format = formatName(f.name, parsed.Metadata)
	entry.Errors = len(parsed.Errors)
	printParseErrors(out, parsed.Errors)
	if len(parsed.Transactions) == 0 {
		if len(parsed.Errors) > 0 {
			return entry, errors.New(parsed.Errors[0].Message)
		}
		fmt.Fprintln(out, "no transactions")
		return entry, nil
	}

	if run.account == "" && isMultiCurrency(parsed.Metadata) {
		return importMulti(ctx, out, ic, run, parsed, entry)
	}
	return importSingle(ctx, out, ic, run, parsed, entry)
}

func isMultiCurrency(md *importer.Metadata) bool {
	return md != nil && (md.BankFormat == multiCurrencyFormat || len(md.Currencies) > 1)
}

func formatName(name string, md *importer.Metadata) string {
	if md != nil && md.BankFormat != "" {
		return md.BankFormat
	}
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
}

func importSingle(ctx context.Context, out io.Writer, ic *pipeline.ImportContext, run importRun, parsed importer.Result, entry importlog.Entry) (importlog.Entry, error) {
	if run.account == "" {
		return entry, errors.New("single-account file needs --account")
	}
	acct, ok := ic.Ledger.AccountByName(run.account)
	if !ok {
		return entry, fmt.Errorf("unknown account %q", run.account)
	}
	entry.Accounts = []string{acct.Name}

	res, err := pipeline.ImportSingle(ctx, ic, pipeline.SingleRequest{
		AccountID:    acct.ID,
		Transactions: parsed.Transactions,
		Mode:         run.mode,
	})
	if err != nil {
		return entry, err
	}
	entry.Added = len(res.Added)
	entry.Updated = len(res.Updated)
	entry.Errors += len(res.Errors)
	printReconcile(out, acct.Name, res.Result)
	if res.MappingsLearned > 0 {
		fmt.Fprintf(out, "payee mappings learned: %d\n", res.MappingsLearned)
	}

	if run.mode != reconcile.Commit || run.skipBalance || parsed.Metadata == nil || parsed.Metadata.BankSaldo == nil {
		return entry, nil
	}
	bal := pipeline.CheckBalance(ctx, ic, acct.ID, *parsed.Metadata.BankSaldo, false)
	if !bal.Success {
		entry.Errors++
		fmt.Fprintf(out, "balance check failed: %s\n", bal.Error)
		return entry, nil
	}
	if bal.CorrectionBooked {
		fmt.Fprintf(out, "balance corrected by %s (%s)\n", amount.Format(bal.Difference), bal.CorrectionID)
	} else {
		fmt.Fprintf(out, "balance matches bank: %s\n", amount.Format(bal.AccountBalance))
	}
	return entry, nil
}

func importMulti(ctx context.Context, out io.Writer, ic *pipeline.ImportContext, run importRun, parsed importer.Result, entry importlog.Entry) (importlog.Entry, error) {
	req := pipeline.MultiRequest{
		Provider:     run.provider,
		Transactions: parsed.Transactions,
		Mode:         run.mode,
	}
	if run.bankAccount != "" || run.cashAccount != "" || run.skipTransfers {
		pc := ic.Settings.Provider(run.provider)
		opts := &pipeline.MultiOptions{
			BankAccountName: pc.BankAccountName,
			CashAccountName: pc.CashAccountName,
			CreateTransfers: !pc.SkipTransfers && !run.skipTransfers,
		}
		if run.bankAccount != "" {
			opts.BankAccountName = run.bankAccount
		}
		if run.cashAccount != "" {
			opts.CashAccountName = run.cashAccount
		}
		req.Options = opts
	}

	resp, err := pipeline.ImportMultiCurrency(ctx, ic, req)
	for _, p := range resp.Partitions {
		entry.Accounts = append(entry.Accounts, p.AccountName)
		entry.Added += len(p.Result.Added)
		entry.Updated += len(p.Result.Updated)
		title := p.AccountName
		if p.Planned {
			title += " (new account)"
		}
		printReconcile(out, title, p.Result)
	}
	entry.Errors += len(resp.Errors)
	for _, e := range resp.Errors {
		fmt.Fprintf(out, "error: %v\n", e)
	}
	if err != nil {
		return entry, err
	}

	if len(resp.AccountsCreated) > 0 {
		fmt.Fprintf(out, "accounts created: %s\n", strings.Join(resp.AccountsCreated, ", "))
	}
	if resp.TransfersLinked > 0 {
		fmt.Fprintf(out, "transfers linked: %d\n", resp.TransfersLinked)
	}
	if resp.MappingsLearned > 0 {
		fmt.Fprintf(out, "payee mappings learned: %d\n", resp.MappingsLearned)
	}
	return entry, nil
}

func printReconcile(out io.Writer, account string, res reconcile.Result) {
	fmt.Fprintf(out, "%s: %d new, %d updated\n", account, len(res.Added), len(res.Updated))
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, t := range res.Transactions {
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n",
			status(t.Verdict),
			t.Date.Format(model.DateFormat),
			amount.Format(t.Amount),
			t.Payee,
		)
	}
	tw.Flush()
	for _, e := range res.Errors {
		fmt.Fprintf(out, "error: %v\n", e)
	}
}

var (
	statusDeleted = color.New(color.FgRed).SprintFunc()
	statusExists  = color.New(color.FgHiBlack).SprintFunc()
	statusUpdate  = color.New(color.FgYellow).SprintFunc()
	statusNew     = color.New(color.FgGreen).SprintFunc()
)

// status labels a verdict. Colors switch off when output is not a terminal.
func status(v model.Verdict) string {
	switch {
	case v.Tombstone:
		return statusDeleted("deleted")
	case v.Existing && v.Ignored:
		return statusExists("exists")
	case v.Existing:
		return statusUpdate("update")
	default:
		return statusNew("new")
	}
}

// commitDataDir records the import in git when auto-commit is on. Returns
// the short hash, or "" when nothing was committed.
func commitDataDir(ctx context.Context, ic *pipeline.ImportContext, root string, imported int) string {
	log := logger.FromContext(ctx)
	if !ic.Settings.Git.AutoCommit || !gitops.IsRepo(root) {
		return ""
	}
	author := gitops.Author{Name: ic.Settings.Git.AuthorName, Email: ic.Settings.Git.AuthorEmail}
	msg := fmt.Sprintf("import: %d file(s)", imported)
	hash, err := gitops.Commit(ctx, root, msg, author)
	if errors.Is(err, gitops.ErrNothingToCommit) {
		return ""
	}
	if err != nil {
		log.Warn().Err(err).Msg("auto-commit failed")
		return ""
	}
	log.Info().Str("commit", hash).Msg("committed import")
	return hash
}

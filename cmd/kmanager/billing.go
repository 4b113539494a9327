package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kmanager/internal/config"
	contractdomain "github.com/smallbiznis/kmanager/internal/contract/domain"
	obscontext "github.com/smallbiznis/kmanager/internal/observability/context"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

const (
	exitOK         = 0
	exitRunFailed  = 1
	exitBatchError = 2
)

// billingRunner executes one batch. The returned cleanup stops whatever the
// runner started.
type billingRunner func(ctx context.Context, req contractdomain.GenerateDueRequest) (contractdomain.BatchResult, error)

type runnerFactory func(ctx context.Context) (billingRunner, config.Config, func(), error)

func newBillingRunner(ctx context.Context) (billingRunner, config.Config, func(), error) {
	var (
		svc contractdomain.BillingService
		cfg config.Config
	)
	app := fx.New(
		infraModules(),
		domainModules(),
		fx.Populate(&svc, &cfg),
	)
	if err := app.Start(ctx); err != nil {
		return nil, config.Config{}, nil, err
	}
	stop := func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = app.Stop(stopCtx)
	}
	return svc.GenerateDue, cfg, stop, nil
}

type billingRunOptions struct {
	date   string
	dryRun bool
	org    string
}

func newBillingCmd(factory runnerFactory) *cobra.Command {
	billing := &cobra.Command{
		Use:   "billing",
		Short: "Contract billing operations",
	}

	var opts billingRunOptions
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Generate documents for every contract due on the billing date",
		Long: `Generate draft documents for every active contract whose next run date
has been reached. Each contract is billed at most once per billing date.

Exit codes:
  0  every contract succeeded or was skipped
  1  at least one contract failed
  2  the batch could not run`,
		Example: `  # Bill everything due today in the billing time zone
  kmanager billing run

  # Preview a past date for one company without writing anything
  kmanager billing run --date 2026-01-01 --org 1790000000000000000 --dry-run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBilling(cmd, factory, opts)
		},
	}
	runCmd.Flags().StringVar(&opts.date, "date", "", "billing date as YYYY-MM-DD (default: today in the billing time zone)")
	runCmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "run the batch and roll everything back")
	runCmd.Flags().StringVar(&opts.org, "org", "", "bill a single company (default: DEFAULT_ORG, otherwise all companies)")

	billing.AddCommand(runCmd)
	return billing
}

func runBilling(cmd *cobra.Command, factory runnerFactory, opts billingRunOptions) error {
	today, err := parseRunDate(opts.date)
	if err != nil {
		return &exitError{code: exitBatchError, err: err}
	}
	orgID, err := parseOrg(opts.org)
	if err != nil {
		return &exitError{code: exitBatchError, err: err}
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	runner, cfg, stop, err := factory(ctx)
	if err != nil {
		return &exitError{code: exitBatchError, err: fmt.Errorf("start: %w", err)}
	}
	defer stop()

	if orgID == 0 {
		orgID = snowflake.ID(cfg.DefaultOrgID)
	}

	ctx = obscontext.WithActor(ctx, "system", "cli")
	result, err := runner(ctx, contractdomain.GenerateDueRequest{
		OrgID:  orgID,
		Today:  today,
		DryRun: opts.dryRun,
	})
	printBatch(cmd.OutOrStdout(), result)

	code := exitCodeFor(result, err)
	if code == exitOK {
		return nil
	}
	return &exitError{code: code, err: err}
}

func parseRunDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	parsed, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --date %q: want YYYY-MM-DD", value)
	}
	return parsed, nil
}

func parseOrg(value string) (snowflake.ID, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	id, err := snowflake.ParseString(value)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid --org %q", value)
	}
	return id, nil
}

func exitCodeFor(result contractdomain.BatchResult, err error) int {
	switch {
	case err != nil:
		return exitBatchError
	case result.Failed > 0:
		return exitRunFailed
	default:
		return exitOK
	}
}

func printBatch(w io.Writer, result contractdomain.BatchResult) {
	for _, run := range result.Runs {
		document := "-"
		if run.DocumentID != nil {
			document = run.DocumentID.String()
		}
		line := fmt.Sprintf("%s\t%s\tdocument=%s", run.ContractID, run.Status, document)
		if run.Message != nil && *run.Message != "" {
			line += "\t" + *run.Message
		}
		fmt.Fprintln(w, line)
	}

	date := "-"
	if !result.RunDate.IsZero() {
		date = result.RunDate.Format(time.DateOnly)
	}
	fmt.Fprintf(w, "batch %s date=%s dry_run=%t succeeded=%d failed=%d skipped=%d\n",
		result.BatchID, date, result.DryRun, result.Succeeded, result.Failed, result.Skipped)
}

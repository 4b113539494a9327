package main

import (
	"context"
	"fmt"

	"github.com/smallbiznis/kmanager/internal/migration"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			app := fx.New(
				infraModules(),
				migration.Module,
			)
			if err := app.Start(ctx); err != nil {
				return &exitError{code: exitBatchError, err: err}
			}
			if err := app.Stop(ctx); err != nil {
				return &exitError{code: exitBatchError, err: err}
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}

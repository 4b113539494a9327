package main

import (
	"github.com/smallbiznis/kmanager/internal/lock"
	"github.com/smallbiznis/kmanager/internal/migration"
	"github.com/smallbiznis/kmanager/internal/scheduler"
	"github.com/smallbiznis/kmanager/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the billing scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app := fx.New(
				infraModules(),
				migration.Module,
				domainModules(),
				lock.Module,
				scheduler.Module,
				server.Module,
			)
			if err := app.Err(); err != nil {
				return &exitError{code: exitBatchError, err: err}
			}
			app.Run()
			return nil
		},
	}
}

package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kmanager/internal/audit"
	"github.com/smallbiznis/kmanager/internal/clock"
	"github.com/smallbiznis/kmanager/internal/config"
	"github.com/smallbiznis/kmanager/internal/contract"
	"github.com/smallbiznis/kmanager/internal/customer"
	"github.com/smallbiznis/kmanager/internal/document"
	"github.com/smallbiznis/kmanager/internal/observability"
	"github.com/smallbiznis/kmanager/internal/organization"
	"github.com/smallbiznis/kmanager/internal/paymentterm"
	"github.com/smallbiznis/kmanager/internal/providers"
	"github.com/smallbiznis/kmanager/internal/tax"
	"github.com/smallbiznis/kmanager/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

var version = "0.1.0"

func newRootCmd(runner runnerFactory) *cobra.Command {
	root := &cobra.Command{
		Use:   "kmanager",
		Short: "Recurring contract billing and document calculation",
		Long: `kmanager stores sales documents, calculates their totals and turns
recurring contracts into draft invoices once per billing interval.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newMigrateCmd())
	root.AddCommand(newBillingCmd(runner))
	return root
}

// infraModules is what every entry point needs before touching the domain.
func infraModules() fx.Option {
	return fx.Options(
		config.Module,
		observability.Module,
		fx.Provide(newSnowflakeNode),
		db.Module,
		clock.Module,
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx").WithOptions(zap.IncreaseLevel(zap.WarnLevel))}
		}),
	)
}

func domainModules() fx.Option {
	return fx.Options(
		audit.Module,
		organization.Module,
		customer.Module,
		paymentterm.Module,
		tax.Module,
		providers.Module,
		document.Module,
		contract.Module,
	)
}

func newSnowflakeNode() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"membership-billing-service/cmd/billingctl/config"
	"membership-billing-service/internal/billing"
	"membership-billing-service/internal/period"
	"membership-billing-service/internal/reporter"
	"membership-billing-service/internal/store"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	generateTenant   string
	generateStrategy string
	generateAsOf     string
	generateRollover bool
	generateOutput   string
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate membership fees for a tenant",
	Long: `Generate runs one fee generation strategy for every active member of
a tenant. The current strategy ensures the period containing the as-of
instant has a fee; the catchup strategy backfills every missed period
since each member's billing anchor. Generation is idempotent: re-running
it never creates a second fee for the same period.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runGenerate()
	},
}

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().StringVar(&generateTenant, "tenant", "", "tenant to generate fees for (required)")
	generateCmd.Flags().StringVar(&generateStrategy, "strategy", "current", "generation strategy: current or catchup")
	generateCmd.Flags().StringVar(&generateAsOf, "as-of", "", "generation instant, YYYY-MM-DD (default now)")
	generateCmd.Flags().BoolVar(&generateRollover, "rollover", false, "also mark ended open fees overdue")
	generateCmd.Flags().StringVar(&generateOutput, "output", "console", "output format: console or json")
	generateCmd.MarkFlagRequired("tenant")
}

func runGenerate() error {
	handler := NewCLIErrorHandler()

	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		os.Exit(handler.HandleError(err))
	}

	strategy, err := billing.ParseStrategy(generateStrategy)
	if err != nil {
		os.Exit(handler.HandleError(err))
	}
	format, err := reporter.ParseOutputFormat(generateOutput)
	if err != nil {
		os.Exit(handler.HandleError(err))
	}

	asOf, err := parseAsOf(generateAsOf, cfg)
	if err != nil {
		os.Exit(handler.HandleError(err))
	}

	db, err := store.Open(cfg.DatabasePath)
	if err != nil {
		os.Exit(handler.HandleError(err))
	}
	defer db.Close()

	ctx := context.Background()
	generator := billing.NewGenerator(db, db, db.Tenants(), period.NewCalculator(cfg.Location()))

	result, err := generator.GenerateTenantFees(ctx, generateTenant, asOf, strategy)
	if err != nil {
		os.Exit(handler.HandleError(err))
	}

	if generateRollover {
		rolled, err := generator.RolloverOverdue(ctx, generateTenant, asOf)
		if err != nil {
			os.Exit(handler.HandleError(err))
		}
		fmt.Fprintf(os.Stderr, "Rolled %d fees to OVERDUE\n", rolled)
	}

	return reporter.NewReporter().WriteGenerationReport(os.Stdout, result, format)
}

func parseAsOf(raw string, cfg *config.Config) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation("2006-01-02", raw, cfg.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --as-of %q: expected YYYY-MM-DD", raw)
	}
	return t, nil
}

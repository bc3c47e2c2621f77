package cmd

import (
	"context"
	"os"

	"membership-billing-service/cmd/billingctl/config"
	"membership-billing-service/internal/matcher"
	"membership-billing-service/internal/parsers"
	"membership-billing-service/internal/reporter"
	"membership-billing-service/internal/store"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	matchTenant    string
	matchStatement string
	matchFormat    string
	matchBank      string
	matchOutput    string
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Parse a bank statement and score it against open fees",
	Long: `Match parses one bank statement file (delimited, CODA or MT940),
normalizes its transactions and scores each against the tenant's open
fees, members and rules. The output is a list of suggestions with scores
and explanations; nothing is booked without human confirmation.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMatch()
	},
}

func init() {
	rootCmd.AddCommand(matchCmd)

	matchCmd.Flags().StringVar(&matchTenant, "tenant", "", "tenant whose fees to match against (required)")
	matchCmd.Flags().StringVar(&matchStatement, "statement", "", "path to the statement file (required)")
	matchCmd.Flags().StringVar(&matchFormat, "format", "delimited", "statement format: delimited, coda or mt940")
	matchCmd.Flags().StringVar(&matchBank, "bank", "", "column preset for delimited statements: ing, kbc or belfius")
	matchCmd.Flags().StringVar(&matchOutput, "output", "console", "output format: console, json or csv")
	matchCmd.MarkFlagRequired("tenant")
	matchCmd.MarkFlagRequired("statement")
}

func runMatch() error {
	handler := NewCLIErrorHandler()

	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		os.Exit(handler.HandleError(err))
	}

	format, err := parsers.ParseFormat(matchFormat)
	if err != nil {
		os.Exit(handler.HandleError(err))
	}
	outputFormat, err := reporter.ParseOutputFormat(matchOutput)
	if err != nil {
		os.Exit(handler.HandleError(err))
	}

	opts := &parsers.Options{}
	if format == parsers.FormatDelimited {
		preset, err := parsers.BankPreset(matchBank)
		if err != nil {
			os.Exit(handler.HandleError(err))
		}
		preset.DateLocation = cfg.Location()
		opts.Delimited = preset
	}

	statement, err := os.Open(matchStatement)
	if err != nil {
		os.Exit(handler.HandleError(err))
	}
	defer statement.Close()

	ctx := context.Background()
	parsed, err := parsers.ParseStatement(ctx, statement, format, opts)
	if err != nil {
		os.Exit(handler.HandleError(err))
	}
	for _, parseErr := range parsed.Errors {
		os.Stderr.WriteString("warning: " + parseErr.Error() + "\n")
	}

	db, err := store.Open(cfg.DatabasePath)
	if err != nil {
		os.Exit(handler.HandleError(err))
	}
	defer db.Close()

	openFees, err := db.FindOpenByTenant(ctx, matchTenant)
	if err != nil {
		os.Exit(handler.HandleError(err))
	}
	members, err := db.FindActiveByTenant(ctx, matchTenant)
	if err != nil {
		os.Exit(handler.HandleError(err))
	}

	categories, err := cfg.Categories()
	if err != nil {
		os.Exit(handler.HandleError(err))
	}
	m, err := matcher.NewMatcher(nil, categories)
	if err != nil {
		os.Exit(handler.HandleError(err))
	}

	results := m.SuggestBatchMatches(parsed.Transactions, &matcher.Context{
		OpenFees: openFees,
		Members:  members,
	})
	return reporter.NewReporter().WriteMatchReport(os.Stdout, results, outputFormat)
}

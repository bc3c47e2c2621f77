package cmd

import (
	"context"
	"encoding/json"
	"os"

	"membership-billing-service/cmd/billingctl/config"
	"membership-billing-service/internal/cards"
	"membership-billing-service/internal/store"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cardMember string

var cardStatusCmd = &cobra.Command{
	Use:   "cardstatus",
	Short: "Derive a member's card status from paid periods",
	Long: `Cardstatus recomputes the member's card snapshot: ACTUEEL when a
paid period covers now, VERLOPEN when the latest period ended unpaid,
NIET_ACTUEEL otherwise, plus the valid-until date of the last paid
period.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCardStatus()
	},
}

func init() {
	rootCmd.AddCommand(cardStatusCmd)

	cardStatusCmd.Flags().StringVar(&cardMember, "member", "", "member id (required)")
	cardStatusCmd.MarkFlagRequired("member")
}

func runCardStatus() error {
	handler := NewCLIErrorHandler()

	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		os.Exit(handler.HandleError(err))
	}

	db, err := store.Open(cfg.DatabasePath)
	if err != nil {
		os.Exit(handler.HandleError(err))
	}
	defer db.Close()

	deriver := cards.NewDeriver(db, db)
	snapshot, _, err := deriver.Refresh(context.Background(), cardMember)
	if err != nil {
		os.Exit(handler.HandleError(err))
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(snapshot)
}

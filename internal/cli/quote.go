package cli

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/pkordes/homecare/internal/repo"
	"github.com/pkordes/homecare/internal/service"
)

func newQuoteCmd() *cobra.Command {
	var taxRateBps int64
	cmd := &cobra.Command{
		Use:   "quote <visit-id>",
		Short: "Print the amount a visit would be charged on release",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid visit ID: %s", args[0])
			}
			if taxRateBps < 0 {
				return fmt.Errorf("tax rate must not be negative, got %d", taxRateBps)
			}

			ctx := cmd.Context()
			pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			fees := service.FeeCalculator{TaxRateBps: taxRateBps}
			visits := service.NewVisitService(service.VisitDeps{
				Visits: repo.NewVisitRepo(pool),
				Fees:   fees,
			})
			amount, err := visits.Quote(ctx, id)
			if err != nil {
				return err
			}
			if isJSON() {
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"visit_id":     id,
					"tax_rate_bps": taxRateBps,
					"amount":       amount,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Visit %s: %s\n", id, formatCents(amount))
			return nil
		},
	}
	cmd.Flags().Int64Var(&taxRateBps, "tax-rate-bps", 1300, "tax rate in basis points")
	return cmd
}

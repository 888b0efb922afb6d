package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/greenshop/internal/footprint"
)

var (
	footprintUser   string
	footprintCredit bool
	footprintJSON   bool
)

var footprintCmd = &cobra.Command{
	Use:   "footprint",
	Short: "Print a user's carbon footprint report",
	Long:  "Compares the user's carbon per purchased item against every order in the store. Tokens are credited only with --credit.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		env, err := initApp(cmd.Context(), "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		return runFootprint(cmd.Context(), cmd.OutOrStdout(), env.Footprint, footprintUser, footprintCredit, footprintJSON)
	},
}

func runFootprint(ctx context.Context, out io.Writer, svc *footprint.Service, userID string, credit, asJSON bool) error {
	report, err := svc.Footprint(ctx, userID, credit)
	if err != nil {
		return eris.Wrap(err, "footprint")
	}
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	formatReport(out, report, credit)
	return nil
}

// formatReport writes a two-column summary of r to out.
func formatReport(out io.Writer, r *footprint.Report, credited bool) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "ITEMS PURCHASED\t%d\n", r.PersonalStats.TotalItems)
	_, _ = fmt.Fprintf(w, "TOTAL CARBON\t%.2f\n", r.PersonalStats.TotalCarbon)
	_, _ = fmt.Fprintf(w, "CARBON PER ITEM\t%.2f\n", r.PersonalStats.AverageCarbonPerItem)
	_, _ = fmt.Fprintf(w, "SUSTAINABILITY PER ITEM\t%.2f\n", r.PersonalStats.AverageSustainability)
	_, _ = fmt.Fprintf(w, "STORE CARBON PER ITEM\t%.2f\n", r.Comparison.GlobalAverageCarbonPerItem)
	_, _ = fmt.Fprintf(w, "CARBON SAVINGS\t%.2f\n", r.Comparison.CarbonSavings)
	_, _ = fmt.Fprintf(w, "REDUCTION\t%.1f%%\n", r.Comparison.PercentageReduction)
	_, _ = fmt.Fprintf(w, "RANKING\t%s\n", r.Comparison.Ranking)
	earned := "TOKENS EARNED"
	if !credited {
		earned = "TOKENS EARNABLE"
	}
	_, _ = fmt.Fprintf(w, "%s\t%d\n", earned, r.Rewards.LastEarned)
	_, _ = fmt.Fprintf(w, "TOKEN BALANCE\t%d\n", r.Rewards.GreenTokens)
	_ = w.Flush()
}

func init() {
	footprintCmd.Flags().StringVar(&footprintUser, "user", "", "user ID (required)")
	footprintCmd.Flags().BoolVar(&footprintCredit, "credit", false, "credit earned tokens to the user's balance")
	footprintCmd.Flags().BoolVar(&footprintJSON, "json", false, "print the report as JSON")
	_ = footprintCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(footprintCmd)
}

package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/greenshop/internal/footprint"
)

var recommendUser string

var recommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Print a user's top product recommendations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		env, err := initApp(cmd.Context(), "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		return runRecommend(cmd.Context(), cmd.OutOrStdout(), env.Footprint, recommendUser)
	},
}

func runRecommend(ctx context.Context, out io.Writer, svc *footprint.Service, userID string) error {
	recs, err := svc.Recommend(ctx, userID)
	if err != nil {
		return eris.Wrap(err, "recommend")
	}
	if len(recs.Recommendations) == 0 {
		zap.L().Info("no in-stock products to recommend, run 'seed' to load a catalog")
		return nil
	}
	formatRecommendations(out, recs)
	return nil
}

// formatRecommendations writes a ranked table of recs to out.
func formatRecommendations(out io.Writer, recs *footprint.Recommendations) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RANK\tSCORE\tPRODUCT\tCATEGORY\tCARBON\tSUSTAINABILITY")
	_, _ = fmt.Fprintln(w, "----\t-----\t-------\t--------\t------\t--------------")
	for i, r := range recs.Recommendations {
		_, _ = fmt.Fprintf(w, "%d\t%.2f\t%s\t%s\t%.2f\t%.0f\n",
			i+1,
			r.RecommendationScore,
			r.Name,
			r.Category.Label(),
			r.CarbonImpact,
			r.SustainabilityScore,
		)
	}
	_ = w.Flush()
	_, _ = fmt.Fprintf(out, "\nstore averages: carbon %.2f per item, sustainability %.1f per item\n",
		recs.Metrics.AverageCarbonImpact, recs.Metrics.AverageSustainabilityScore)
}

func init() {
	recommendCmd.Flags().StringVar(&recommendUser, "user", "", "user ID (required)")
	_ = recommendCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(recommendCmd)
}

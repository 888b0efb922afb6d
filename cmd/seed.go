package main

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/greenshop/internal/catalog"
	"github.com/sells-group/greenshop/internal/store"
)

var seedFile string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load products from a YAML or CSV catalog file",
	Long:  "Inserts or updates products by ID. Products without an ID get one derived from their name, so reseeding the same file is idempotent.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		env, err := initApp(cmd.Context(), "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		n, err := seedCatalog(cmd.Context(), env.Store, seedFile)
		if err != nil {
			return err
		}
		zap.L().Info("seed complete",
			zap.String("file", seedFile),
			zap.Int64("products", n),
		)
		return nil
	},
}

func seedCatalog(ctx context.Context, st store.Store, path string) (int64, error) {
	products, err := catalog.Load(path)
	if err != nil {
		return 0, err
	}
	n, err := st.UpsertProducts(ctx, products)
	if err != nil {
		return 0, eris.Wrap(err, "seed products")
	}
	return n, nil
}

func init() {
	seedCmd.Flags().StringVar(&seedFile, "file", "catalog.yaml", "catalog file (.yaml, .yml, or .csv)")
	rootCmd.AddCommand(seedCmd)
}

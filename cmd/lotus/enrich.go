package main

import (
	"fmt"
	"log/slog"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/lotus-health/lotus/plugin/pubmed"
	"github.com/lotus-health/lotus/store"
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Update product research counts from PubMed study data",
	RunE: func(cmd *cobra.Command, _ []string) error {
		email, err := cmd.Flags().GetString("email")
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		_, storeInstance, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer storeInstance.Close()

		products, err := storeInstance.ListProducts(ctx, &store.FindProduct{})
		if err != nil {
			return errors.Wrap(err, "failed to list products")
		}

		client := pubmed.NewClient(email)
		enriched := 0
		for _, product := range products {
			if len(product.IngredientIDs) == 0 {
				continue
			}
			ingredients, err := storeInstance.ListIngredients(ctx, &store.FindIngredient{IDs: product.IngredientIDs})
			if err != nil {
				return errors.Wrapf(err, "failed to resolve ingredients for %s", product.Barcode)
			}

			var total int32
			for _, ingredient := range ingredients {
				count, err := client.CountStudies(ctx, ingredient.Name)
				if err != nil {
					slog.Warn("skipping ingredient, PubMed lookup failed",
						"ingredient", ingredient.Name, "error", err)
					continue
				}
				total += count
			}

			if _, err := storeInstance.UpdateProduct(ctx, &store.UpdateProduct{
				ID:            product.ID,
				ResearchCount: &total,
			}); err != nil {
				return errors.Wrapf(err, "failed to update research count for %s", product.Barcode)
			}
			slog.Info("enriched product", "barcode", product.Barcode, "brand", product.BrandName, "research_count", total)
			enriched++
		}

		fmt.Printf("Enriched %d products with PubMed research counts\n", enriched)
		return nil
	},
}

func init() {
	enrichCmd.Flags().String("email", "research@lotus-health.app", "contact email sent with NCBI eutils requests")
}

package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/lotus-health/lotus/store"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Backfill embeddings for library rows that are missing a vector",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		instanceProfile, storeInstance, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer storeInstance.Close()

		embedder := newEmbedderIfConfigured(instanceProfile)
		if embedder == nil {
			return errors.New("embedding service is not configured, set LOTUS_AI_LLM_API_KEY or LOTUS_AI_EMBEDDING_API_KEY")
		}

		synced := 0
		for {
			pending, err := storeInstance.ListIngredientsWithoutEmbedding(ctx, embedBatchSize)
			if err != nil {
				return errors.Wrap(err, "failed to list ingredients without embedding")
			}
			if len(pending) == 0 {
				break
			}

			texts := make([]string, 0, len(pending))
			for _, ingredient := range pending {
				texts = append(texts, embeddingText(ingredient.Name, ingredient.Description))
			}
			vectors, err := embedBatchWithRetry(ctx, embedder, texts)
			if err != nil {
				return errors.Wrap(err, "failed to embed ingredient batch")
			}

			for i, ingredient := range pending {
				_, err := storeInstance.UpsertIngredient(ctx, &store.UpsertIngredient{
					Name:        ingredient.Name,
					Description: ingredient.Description,
					RiskLevel:   ingredient.RiskLevel,
					Embedding:   vectors[i],
				})
				if err != nil {
					return errors.Wrapf(err, "failed to update embedding for %s", ingredient.Name)
				}
				synced++
			}
		}

		fmt.Printf("Backfilled embeddings for %d ingredients\n", synced)
		return nil
	},
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/lotus-health/lotus/ai"
	"github.com/lotus-health/lotus/internal/profile"
	"github.com/lotus-health/lotus/store"
	"github.com/lotus-health/lotus/store/db"
)

// embedBatchSize bounds the number of texts sent per embedding request.
const embedBatchSize = 64

type seedIngredient struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	RiskLevel   string `json:"risk_level"`
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load a curated ingredient library from a JSON file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		file, err := cmd.Flags().GetString("file")
		if err != nil {
			return err
		}
		if file == "" {
			return errors.New("--file is required")
		}

		ctx := cmd.Context()
		instanceProfile, storeInstance, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer storeInstance.Close()

		data, err := os.ReadFile(file)
		if err != nil {
			return errors.Wrapf(err, "failed to read %s", file)
		}
		entries := []*seedIngredient{}
		if err := json.Unmarshal(data, &entries); err != nil {
			return errors.Wrapf(err, "failed to parse %s", file)
		}

		embedder := newEmbedderIfConfigured(instanceProfile)
		if embedder == nil {
			slog.Warn("embedding service not configured, seeding without vectors; run `lotus sync` later")
		}

		seeded := 0
		for start := 0; start < len(entries); start += embedBatchSize {
			end := min(start+embedBatchSize, len(entries))
			batch := entries[start:end]

			var vectors [][]float32
			if embedder != nil {
				texts := make([]string, 0, len(batch))
				for _, entry := range batch {
					texts = append(texts, embeddingText(entry.Name, entry.Description))
				}
				vectors, err = embedBatchWithRetry(ctx, embedder, texts)
				if err != nil {
					return errors.Wrap(err, "failed to embed ingredient batch")
				}
			}

			for i, entry := range batch {
				riskLevel := store.RiskLevel(entry.RiskLevel)
				if !riskLevel.Valid() {
					slog.Warn("skipping ingredient with invalid risk level", "name", entry.Name, "risk_level", entry.RiskLevel)
					continue
				}
				upsert := &store.UpsertIngredient{
					Name:        entry.Name,
					Description: entry.Description,
					RiskLevel:   riskLevel,
				}
				if vectors != nil {
					upsert.Embedding = vectors[i]
				}
				if _, err := storeInstance.UpsertIngredient(ctx, upsert); err != nil {
					return errors.Wrapf(err, "failed to upsert ingredient %s", entry.Name)
				}
				seeded++
			}
		}

		fmt.Printf("Seeded %d ingredients from %s\n", seeded, file)
		return nil
	},
}

func init() {
	seedCmd.Flags().String("file", "", "path to the ingredient library JSON file")
}

// openStore builds the profile, connects the database driver, and runs
// migrations. Shared by the maintenance subcommands.
func openStore(ctx context.Context) (*profile.Profile, *store.Store, error) {
	instanceProfile := buildProfile()
	if err := instanceProfile.Validate(); err != nil {
		return nil, nil, err
	}

	dbDriver, err := db.NewDBDriver(instanceProfile)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to create db driver")
	}
	storeInstance := store.New(dbDriver, instanceProfile)
	if err := storeInstance.Migrate(ctx); err != nil {
		_ = storeInstance.Close()
		return nil, nil, errors.Wrap(err, "failed to migrate")
	}
	return instanceProfile, storeInstance, nil
}

// newEmbedderIfConfigured returns nil when no embedding credentials are
// present instead of failing, so seeding still works offline.
func newEmbedderIfConfigured(instanceProfile *profile.Profile) ai.EmbeddingService {
	cfg := ai.NewConfigFromProfile(instanceProfile)
	if err := cfg.Validate(); err != nil {
		return nil
	}
	embedder, err := ai.NewEmbeddingService(&cfg.Embedding)
	if err != nil {
		slog.Warn("failed to create embedding service", "error", err)
		return nil
	}
	return embedder
}

// embedBatchWithRetry retries transient embedding failures with
// exponential backoff before giving up.
func embedBatchWithRetry(ctx context.Context, embedder ai.EmbeddingService, texts []string) ([][]float32, error) {
	const maxAttempts = 3
	backoff := time.Second

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		vectors, err := embedder.EmbedBatch(ctx, texts)
		if err == nil {
			return vectors, nil
		}
		lastErr = err
		if attempt < maxAttempts {
			slog.Warn("embedding batch failed, retrying", "attempt", attempt, "error", err)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}
	return nil, lastErr
}

// embeddingText is the canonical text embedded for a library row. Must
// stay in sync with the sync command so vectors are comparable.
func embeddingText(name, description string) string {
	if description == "" {
		return name
	}
	return name + ": " + description
}

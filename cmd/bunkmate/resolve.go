package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/campwire/bunkmate/internal/config"
	"github.com/campwire/bunkmate/internal/pipeline"
)

func resolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve imported submissions into structured requests",
		Long: `Run the request resolution pipeline over the year's submissions.

Each submission flows through AI extraction, local name matching, and,
when a reference stays ambiguous, AI disambiguation. Submissions whose
text is unchanged since the last run are skipped. References the
pipeline cannot settle land in the manual review queue; see
'bunkmate review'.`,
		RunE: runResolve,
	}

	cmd.Flags().IntP("year", "y", time.Now().Year(), "camp year to process")

	return cmd
}

func runResolve(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	year, _ := cmd.Flags().GetInt("year")

	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	cfg, err := config.Load(ctx, store)
	if err != nil {
		return err
	}

	client, err := createAIClient()
	if err != nil {
		return fmt.Errorf("failed to initialize AI client: %w", err)
	}

	fmt.Println(formatTitle(fmt.Sprintf("Resolving requests for %d", year)))

	stats, err := pipeline.New(store, client, cfg, slog.Default()).Run(ctx, year)
	if err != nil {
		return fmt.Errorf("pipeline run failed: %w", err)
	}

	content := fmt.Sprintf(`Submissions:    %d
Skipped:        %d (unchanged)
Intents:        %d
Auto-resolved:  %d
Disambiguated:  %d
Manual review:  %d
Failed:         %d
AI calls:       %d
Duration:       %s`,
		stats.TotalSubmissions, stats.Skipped, stats.Extracted,
		stats.AutoResolved, stats.Disambiguated, stats.ManualReview,
		stats.Failed, stats.AICalls, stats.Duration.Round(time.Millisecond))

	fmt.Println(renderBox("Resolution Summary", content))
	if stats.ManualReview > 0 {
		fmt.Println(formatWarning(fmt.Sprintf("%d requests need review: bunkmate review list", stats.ManualReview)))
	}
	return nil
}

package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/campwire/bunkmate/internal/dedupe"
)

func dedupeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dedupe",
		Short: "Find and merge duplicate resolved requests",
		Long: `Manage duplicates: the same request arriving through several intake
fields. Merging keeps one winner visible to the solver; the absorbed
rows stay on file and can be split back out at any time.`,
	}

	cmd.AddCommand(dedupeFindCmd())
	cmd.AddCommand(dedupeAutoCmd())
	cmd.AddCommand(dedupeMergeCmd())
	cmd.AddCommand(dedupeSplitCmd())

	return cmd
}

func dedupeFindCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "find",
		Short: "List duplicate groups without changing anything",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			year, _ := cmd.Flags().GetInt("year")

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			groups, err := dedupe.New(store, slog.Default()).FindDuplicates(ctx, year)
			if err != nil {
				return fmt.Errorf("failed to find duplicates: %w", err)
			}
			if len(groups) == 0 {
				fmt.Println(formatSuccess("No duplicates found"))
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			defer func() { _ = w.Flush() }()
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				headerStyle.Render("Requester"), headerStyle.Render("Requestee"),
				headerStyle.Render("Winner"), headerStyle.Render("Members"))
			for _, g := range groups {
				winner := g.Winner()
				var ids []string
				for _, r := range g.Requests {
					ids = append(ids, strconv.FormatInt(r.ID, 10))
				}
				fmt.Fprintf(w, "%s\t%s\t#%d (%s)\t%s\n",
					winner.RequesterExternalID, winner.RequesteeExternalID,
					winner.ID, winner.SourceField, strings.Join(ids, ", "))
			}
			return nil
		},
	}
	cmd.Flags().IntP("year", "y", time.Now().Year(), "camp year")
	return cmd
}

func dedupeAutoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auto",
		Short: "Merge every duplicate group using the winner rules",
		Long: `Merge all duplicate groups automatically. In each group the locked
request wins, then the highest confidence, then the oldest row. Groups
with more than one locked request are skipped for a human decision.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			year, _ := cmd.Flags().GetInt("year")

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			merged, skipped, err := dedupe.New(store, slog.Default()).AutoMerge(ctx, year)
			if err != nil {
				return fmt.Errorf("auto-merge failed: %w", err)
			}

			fmt.Println(formatSuccess(fmt.Sprintf("Merged %d duplicates", merged)))
			for _, g := range skipped {
				fmt.Println(formatWarning(fmt.Sprintf(
					"skipped %s → %s: multiple locked requests, merge manually",
					g.Requests[0].RequesterExternalID, g.Requests[0].RequesteeExternalID)))
			}
			return nil
		},
	}
	cmd.Flags().IntP("year", "y", time.Now().Year(), "camp year")
	return cmd
}

func dedupeMergeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "merge <winner-id> <loser-id>...",
		Short: "Merge specific requests into a winner",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			ids := make([]int64, len(args))
			for i, arg := range args {
				id, err := strconv.ParseInt(arg, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid request id %q", arg)
				}
				ids[i] = id
			}

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := dedupe.New(store, slog.Default()).Merge(ctx, ids[0], ids[1:]...); err != nil {
				return fmt.Errorf("merge failed: %w", err)
			}
			fmt.Println(formatSuccess(fmt.Sprintf("Merged %d requests into #%d", len(ids)-1, ids[0])))
			return nil
		},
	}
}

func dedupeSplitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "split <id>",
		Short: "Restore a merged request to standalone",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid request id %q", args[0])
			}

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := dedupe.New(store, slog.Default()).Split(ctx, id); err != nil {
				return fmt.Errorf("split failed: %w", err)
			}
			fmt.Println(formatSuccess(fmt.Sprintf("Request #%d restored", id)))
			return nil
		},
	}
}

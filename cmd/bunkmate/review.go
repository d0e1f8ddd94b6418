package main

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/campwire/bunkmate/internal/dedupe"
	"github.com/campwire/bunkmate/internal/model"
	"github.com/campwire/bunkmate/internal/service"
)

func reviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Work the manual review queue",
		Long: `Inspect and settle requests the pipeline could not resolve on its
own. Approving locks the request so later pipeline runs and merges
never overwrite the human decision.`,
	}

	cmd.AddCommand(reviewListCmd())
	cmd.AddCommand(reviewShowCmd())
	cmd.AddCommand(reviewApproveCmd())
	cmd.AddCommand(reviewDeclineCmd())

	return cmd
}

func reviewListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List requests awaiting review",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			year, _ := cmd.Flags().GetInt("year")
			sessionID, _ := cmd.Flags().GetString("session")

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			requests, err := store.GetResolvedRequests(ctx, service.RequestFilter{
				Year:       year,
				SessionID:  sessionID,
				ReviewOnly: true,
			})
			if err != nil {
				return fmt.Errorf("failed to load review queue: %w", err)
			}
			if len(requests) == 0 {
				fmt.Println(formatSuccess("Review queue is empty"))
				return nil
			}

			fmt.Println(formatTitle(fmt.Sprintf("%d requests awaiting review", len(requests))))

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			defer func() { _ = w.Flush() }()
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				headerStyle.Render("ID"), headerStyle.Render("Requester"),
				headerStyle.Render("Guess"), headerStyle.Render("Type"),
				headerStyle.Render("Conf"), headerStyle.Render("Source"))
			for _, r := range requests {
				guess := r.RequesteeExternalID
				if guess == "" {
					guess = subtleStyle.Render("(none)")
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%.2f\t%s\n",
					r.ID, r.RequesterExternalID, guess, r.Type, r.Confidence, r.SourceField)
			}
			return nil
		},
	}

	cmd.Flags().IntP("year", "y", time.Now().Year(), "camp year")
	cmd.Flags().StringP("session", "s", "", "filter by session")

	return cmd
}

func reviewShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one request with its full audit trail",
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

			r, err := store.GetResolvedRequest(ctx, id)
			if err != nil {
				return fmt.Errorf("failed to load request: %w", err)
			}

			content := fmt.Sprintf(`Requester:   %s
Requestee:   %s
Type:        %s
Session:     %s  Year: %d
Status:      %s (%s)
Confidence:  %.2f (%s)
Priority:    %d
Explanation: %s`,
				r.RequesterExternalID, r.RequesteeExternalID, r.Type,
				r.SessionID, r.Year, r.Status, r.State,
				r.Confidence, r.Level, r.Priority, r.Explanation)

			sources, err := dedupe.New(store, nil).Sources(ctx, id)
			if err == nil && len(sources) > 0 {
				content += "\n\nSources:"
				for _, src := range sources {
					sub, err := store.GetOriginalRequest(ctx, src.OriginalRequestID)
					if err != nil {
						continue
					}
					marker := ""
					if src.IsPrimary {
						marker = " (primary)"
					}
					content += fmt.Sprintf("\n  [%s]%s %q", sub.FieldType, marker, sub.RawText)
				}
			}
			if r.AuditTrail != "" {
				content += "\n\nTrail: " + subtleStyle.Render(r.AuditTrail)
			}

			fmt.Println(renderBox(fmt.Sprintf("Request #%d", id), content))
			return nil
		},
	}
}

func reviewApproveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approve <id>",
		Short: "Approve a request, optionally correcting the requestee",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			requestee, _ := cmd.Flags().GetString("requestee")

			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid request id %q", args[0])
			}

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			r, err := store.GetResolvedRequest(ctx, id)
			if err != nil {
				return fmt.Errorf("failed to load request: %w", err)
			}
			if requestee != "" {
				if _, err := store.GetPerson(ctx, requestee, r.Year); err != nil {
					return fmt.Errorf("requestee %s: %w", requestee, err)
				}
				r.RequesteeExternalID = requestee
			}
			if r.RequesteeExternalID == "" && r.Type != model.RequestAgePreference {
				return fmt.Errorf("request %d has no requestee; approve with --requestee", id)
			}

			r.Status = model.StatusResolved
			r.State = model.StateResolved
			r.RequiresManualReview = false
			r.Locked = true
			if _, err := store.UpsertResolvedRequest(ctx, r); err != nil {
				return fmt.Errorf("failed to approve request: %w", err)
			}

			fmt.Println(formatSuccess(fmt.Sprintf("Approved request #%d (%s → %s)",
				id, r.RequesterExternalID, r.RequesteeExternalID)))
			return nil
		},
		Args: cobra.ExactArgs(1),
	}

	cmd.Flags().String("requestee", "", "correct the requestee to this camper external id")

	return cmd
}

func reviewDeclineCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decline <id>",
		Short: "Decline a request so the solver ignores it",
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

			if err := store.UpdateRequestStatus(ctx, id, model.StatusDeclined, model.StateManualReview); err != nil {
				return fmt.Errorf("failed to decline request: %w", err)
			}
			fmt.Println(formatSuccess(fmt.Sprintf("Declined request #%d", id)))
			return nil
		},
	}
}

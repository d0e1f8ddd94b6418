package main

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/campwire/bunkmate/internal/model"
	"github.com/campwire/bunkmate/internal/scenario"
)

func scenarioCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scenario",
		Short: "Manage what-if assignment scenarios",
		Long: `Scenarios are isolated assignment drafts. Solves write into a
scenario; production only changes when a scenario is applied.`,
	}

	cmd.AddCommand(scenarioNewCmd())
	cmd.AddCommand(scenarioApplyCmd())
	cmd.AddCommand(scenarioAssignmentsCmd())
	cmd.AddCommand(scenarioGroupsCmd())

	return cmd
}

func scenarioNewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "new",
		Short: "Mint a fresh scenario id",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := initStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			fmt.Println(scenario.NewManager(store, nil).NewScenarioID())
			return nil
		},
	}
}

func scenarioApplyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Promote a scenario's assignments to production",
		Long: `Copy a scenario's draft assignments over the session's production
assignments. With scenario.apply.delay_seconds configured, the apply
waits out the delay first; interrupting during the wait aborts it.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			scenarioID, _ := cmd.Flags().GetString("scenario")
			sessionID, _ := cmd.Flags().GetString("session")
			year, _ := cmd.Flags().GetInt("year")

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := scenario.NewManager(store, nil).Apply(ctx, scenarioID, sessionID, year); err != nil {
				return fmt.Errorf("apply failed: %w", err)
			}
			fmt.Println(formatSuccess(fmt.Sprintf("Scenario applied to production for session %s", sessionID)))
			return nil
		},
	}

	cmd.Flags().String("scenario", "", "scenario id (required)")
	cmd.Flags().StringP("session", "s", "", "session external id (required)")
	cmd.Flags().IntP("year", "y", time.Now().Year(), "camp year")
	_ = cmd.MarkFlagRequired("scenario")
	_ = cmd.MarkFlagRequired("session")

	return cmd
}

func scenarioAssignmentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assignments",
		Short: "Show assignments for a scenario or production",
		Long:  `List assignments by bunk. Without --scenario, production is shown.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			scenarioID, _ := cmd.Flags().GetString("scenario")
			sessionID, _ := cmd.Flags().GetString("session")
			year, _ := cmd.Flags().GetInt("year")

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			assignments, err := store.GetAssignments(ctx, scenarioID, sessionID, year)
			if err != nil {
				return fmt.Errorf("failed to load assignments: %w", err)
			}
			if len(assignments) == 0 {
				fmt.Println(formatWarning("No assignments found"))
				return nil
			}

			byBunk := make(map[string][]model.Assignment)
			for _, a := range assignments {
				byBunk[a.BunkExternalID] = append(byBunk[a.BunkExternalID], a)
			}
			bunks := make([]string, 0, len(byBunk))
			for b := range byBunk {
				bunks = append(bunks, b)
			}
			sort.Strings(bunks)

			label := "production"
			if scenarioID != "" {
				label = "scenario " + scenarioID
			}
			fmt.Println(formatTitle(fmt.Sprintf("Assignments for session %s (%s)", sessionID, label)))

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			defer func() { _ = w.Flush() }()
			for _, bunk := range bunks {
				members := byBunk[bunk]
				sort.Slice(members, func(i, j int) bool {
					return members[i].PersonExternalID < members[j].PersonExternalID
				})
				fmt.Fprintf(w, "%s\t(%d campers)\n", headerStyle.Render(bunk), len(members))
				for _, a := range members {
					fmt.Fprintf(w, "  %s\t%s\n", a.PersonExternalID, subtleStyle.Render(string(a.Source)))
				}
			}
			return nil
		},
	}

	cmd.Flags().String("scenario", "", "scenario id (empty for production)")
	cmd.Flags().StringP("session", "s", "", "session external id (required)")
	cmd.Flags().IntP("year", "y", time.Now().Year(), "camp year")
	_ = cmd.MarkFlagRequired("session")

	return cmd
}

func scenarioGroupsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "groups",
		Short: "Manage locked groups",
		Long: `Locked groups are staff-curated sets of campers that must share a
cabin. The solver places each group as a unit before anything else.`,
	}

	cmd.AddCommand(groupsAddCmd())
	cmd.AddCommand(groupsListCmd())
	cmd.AddCommand(groupsDeleteCmd())

	return cmd
}

func groupsAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a locked group",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			scenarioID, _ := cmd.Flags().GetString("scenario")
			sessionID, _ := cmd.Flags().GetString("session")
			year, _ := cmd.Flags().GetInt("year")
			name, _ := cmd.Flags().GetString("name")
			members, _ := cmd.Flags().GetStringSlice("members")

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			id, err := scenario.NewManager(store, nil).SaveLockedGroup(ctx, &model.LockedGroup{
				ScenarioID: scenarioID,
				SessionID:  sessionID,
				Name:       name,
				MemberIDs:  members,
				Year:       year,
				CreatedAt:  time.Now(),
			})
			if err != nil {
				return fmt.Errorf("failed to create locked group: %w", err)
			}
			fmt.Println(formatSuccess(fmt.Sprintf("Created locked group %q (ID: %d)", name, id)))
			return nil
		},
	}

	cmd.Flags().String("scenario", "", "scenario id (empty for production planning)")
	cmd.Flags().StringP("session", "s", "", "session external id (required)")
	cmd.Flags().IntP("year", "y", time.Now().Year(), "camp year")
	cmd.Flags().String("name", "", "group name")
	cmd.Flags().StringSlice("members", nil, "camper external ids (comma-separated, at least two)")
	_ = cmd.MarkFlagRequired("session")
	_ = cmd.MarkFlagRequired("members")

	return cmd
}

func groupsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List locked groups",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			scenarioID, _ := cmd.Flags().GetString("scenario")
			sessionID, _ := cmd.Flags().GetString("session")
			year, _ := cmd.Flags().GetInt("year")

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			groups, err := store.GetLockedGroups(ctx, scenarioID, sessionID, year)
			if err != nil {
				return fmt.Errorf("failed to load locked groups: %w", err)
			}
			if len(groups) == 0 {
				fmt.Println(subtleStyle.Render("No locked groups"))
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			defer func() { _ = w.Flush() }()
			fmt.Fprintf(w, "%s\t%s\t%s\n",
				headerStyle.Render("ID"), headerStyle.Render("Name"), headerStyle.Render("Members"))
			for _, g := range groups {
				fmt.Fprintf(w, "%d\t%s\t%s\n", g.ID, g.Name, strings.Join(g.MemberIDs, ", "))
			}
			return nil
		},
	}

	cmd.Flags().String("scenario", "", "scenario id (empty for production planning)")
	cmd.Flags().StringP("session", "s", "", "session external id (required)")
	cmd.Flags().IntP("year", "y", time.Now().Year(), "camp year")
	_ = cmd.MarkFlagRequired("session")

	return cmd
}

func groupsDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a locked group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			scenarioID, _ := cmd.Flags().GetString("scenario")

			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid group id %q", args[0])
			}

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := scenario.NewManager(store, nil).DeleteLockedGroup(ctx, scenarioID, id); err != nil {
				return fmt.Errorf("failed to delete locked group: %w", err)
			}
			fmt.Println(formatSuccess(fmt.Sprintf("Deleted locked group %d", id)))
			return nil
		},
	}

	cmd.Flags().String("scenario", "", "scenario id the group belongs to")

	return cmd
}

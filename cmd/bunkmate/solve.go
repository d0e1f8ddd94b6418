package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/campwire/bunkmate/internal/common"
	"github.com/campwire/bunkmate/internal/model"
	"github.com/campwire/bunkmate/internal/scenario"
	"github.com/campwire/bunkmate/internal/service"
)

func solveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "solve",
		Short: "Assign campers to bunks for one session",
		Long: `Run the assignment solver for a session. Output goes to a scenario
draft, never straight to production; inspect it and promote it with
'bunkmate scenario apply'.

Without --scenario a fresh scenario is created and its id printed.`,
		RunE: runSolve,
	}

	cmd.Flags().StringP("session", "s", "", "session external id (required)")
	cmd.Flags().IntP("year", "y", time.Now().Year(), "camp year")
	cmd.Flags().String("scenario", "", "existing scenario id to re-solve")
	_ = cmd.MarkFlagRequired("session")

	cmd.AddCommand(solveStatusCmd())

	return cmd
}

func solveStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <run-id>",
		Short: "Show a solver run's outcome and persisted logs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			showLogs, _ := cmd.Flags().GetBool("logs")

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			run, err := store.GetSolverRun(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to load run: %w", err)
			}

			content := fmt.Sprintf(`Status:   %s
Session:  %s  Year: %d
Scenario: %s
Progress: %d%%`,
				run.Status, run.SessionID, run.Year, run.ScenarioID, run.Progress)
			if run.FailureDetail != "" {
				content += "\nDetail:   " + run.FailureDetail
			}
			fmt.Println(renderBox("Run "+run.ID, content))
			printRunStats(run.Stats)

			if showLogs {
				lines, err := store.GetRunLogs(ctx, run.ID)
				if err != nil {
					return fmt.Errorf("failed to load run logs: %w", err)
				}
				for _, line := range lines {
					prefix := line.At.Format("15:04:05")
					if line.Level == "error" {
						fmt.Println(errorStyle.Render(prefix + " " + line.Message))
					} else {
						fmt.Println(subtleStyle.Render(prefix) + " " + line.Message)
					}
				}
			}
			return nil
		},
	}

	cmd.Flags().Bool("logs", false, "include the run's persisted log lines")

	return cmd
}

func runSolve(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	sessionID, _ := cmd.Flags().GetString("session")
	year, _ := cmd.Flags().GetInt("year")
	scenarioID, _ := cmd.Flags().GetString("scenario")

	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	manager := scenario.NewManager(store, nil)
	if scenarioID == "" {
		scenarioID = manager.NewScenarioID()
	}

	fmt.Println(formatTitle(fmt.Sprintf("Solving session %s for %d", sessionID, year)))
	fmt.Println(subtleStyle.Render("scenario " + scenarioID))

	// The runner persists progress; a watcher renders it while Solve blocks.
	watchCtx, stopWatch := context.WithCancel(ctx)
	done := make(chan struct{})
	go watchProgress(watchCtx, store, scenarioID, done)

	run, err := manager.Solve(ctx, scenarioID, sessionID, year)
	stopWatch()
	<-done

	if err != nil {
		if run != nil && run.Status == model.RunFailed {
			fmt.Println(errorStyle.Render("✗ No feasible assignment: " + run.FailureDetail))
			printRunStats(run.Stats)
			fmt.Println(subtleStyle.Render("logs: bunkmate solve status " + run.ID + " --logs"))
		}
		return fmt.Errorf("solve failed: %w", err)
	}

	fmt.Println(formatSuccess("Solve complete (run " + run.ID + ")"))
	printRunStats(run.Stats)
	fmt.Println(subtleStyle.Render(fmt.Sprintf("apply with: bunkmate scenario apply --scenario %s --session %s --year %d",
		scenarioID, sessionID, year)))
	return nil
}

func watchProgress(ctx context.Context, store service.Storage, scenarioID string, done chan<- struct{}) {
	defer close(done)

	bar := progressbar.NewOptions(100,
		progressbar.OptionSetDescription("optimizing"),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionShowCount(),
	)

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = bar.Finish()
			return
		case <-ticker.C:
			run, err := store.GetActiveSolverRun(ctx, scenarioID)
			if err != nil {
				if errors.Is(err, common.ErrNotFound) {
					continue
				}
				return
			}
			_ = bar.Set(run.Progress)
		}
	}
}

func printRunStats(stats *model.RunStats) {
	if stats == nil {
		return
	}

	content := fmt.Sprintf(`Campers:            %d
Objective:          %.2f
Requests satisfied: %d / %d
Impossible targets: %d
Campers with none:  %d
Iterations:         %d`,
		stats.TotalCampers, stats.Objective,
		stats.RequestsSatisfied, stats.RequestsConsidered,
		stats.RequestsImpossible, stats.ZeroSatisfaction, stats.Iterations)

	if len(stats.ViolationsByKind) > 0 {
		kinds := make([]string, 0, len(stats.ViolationsByKind))
		for k := range stats.ViolationsByKind {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		content += "\n\nHard violations:"
		for _, k := range kinds {
			content += fmt.Sprintf("\n  %s: %d", k, stats.ViolationsByKind[k])
		}
	}

	fmt.Println(renderBox("Solver Result", content))
}

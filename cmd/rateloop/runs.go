package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hairizuanbinnoorazman/rateloop/logger"
	"github.com/hairizuanbinnoorazman/rateloop/run"
)

var flagJSON bool

const timeLayout = "2006-01-02 15:04:05"

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect run history",
	}
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "Output as JSON")

	cmd.AddCommand(newRunsListCmd())
	cmd.AddCommand(newRunsShowCmd())
	return cmd
}

func init() {
	rootCmd.AddCommand(newRunsCmd())
}

// withRunStore opens the history database for the duration of fn.
func withRunStore(ctx context.Context, fn func(store run.Store) error) error {
	cfg, err := LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if !cfg.Database.Enabled {
		return errors.New("run history is disabled (database.enabled=false)")
	}

	log := logger.NewLogrusLogger("warn")
	store, db, err := openHistory(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeDB(db)

	return fn(store)
}

func newRunsListCmd() *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunStore(cmd.Context(), func(store run.Store) error {
				runs, err := store.List(cmd.Context(), limit, offset)
				if err != nil {
					return err
				}
				if flagJSON {
					return printJSON(cmd.OutOrStdout(), runs)
				}
				printRuns(cmd.OutOrStdout(), runs)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of runs to skip")
	return cmd
}

func newRunsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a run and its sessions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid run ID: %w", err)
			}

			return withRunStore(cmd.Context(), func(store run.Store) error {
				r, err := store.GetByID(cmd.Context(), id)
				if err != nil {
					return err
				}
				sessions, err := store.ListSessions(cmd.Context(), id)
				if err != nil {
					return err
				}

				if flagJSON {
					return printJSON(cmd.OutOrStdout(), map[string]interface{}{
						"run":      r,
						"sessions": sessions,
					})
				}
				printRunDetail(cmd.OutOrStdout(), r, sessions)
				return nil
			})
		},
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format(timeLayout)
}

func formatDuration(ms *int64) string {
	if ms == nil {
		return "-"
	}
	return (time.Duration(*ms) * time.Millisecond).Round(time.Second).String()
}

func printRuns(w io.Writer, runs []*run.Run) {
	headers := []string{"ID", "STATUS", "TRIGGER", "SESSIONS", "OK", "FAILED", "STARTED AT", "DURATION"}
	var rows [][]string
	for _, r := range runs {
		rows = append(rows, []string{
			r.ID.String(),
			string(r.Status),
			string(r.Trigger),
			strconv.Itoa(r.SessionCount),
			strconv.Itoa(r.SuccessCount),
			strconv.Itoa(r.FailCount),
			formatTime(r.StartedAt),
			formatDuration(r.DurationMs),
		})
	}
	printTable(w, headers, rows)
}

func printRunDetail(w io.Writer, r *run.Run, sessions []*run.SessionRecord) {
	printTable(w, []string{"FIELD", "VALUE"}, [][]string{
		{"ID", r.ID.String()},
		{"Status", string(r.Status)},
		{"Trigger", string(r.Trigger)},
		{"Target", r.TargetURL},
		{"Started", formatTime(r.StartedAt)},
		{"Completed", formatTime(r.CompletedAt)},
		{"Duration", formatDuration(r.DurationMs)},
		{"Summary", valueOrDash(r.SummaryPath)},
		{"Log", valueOrDash(r.LogPath)},
		{"Error", valueOrDash(r.Error)},
	})
	fmt.Fprintln(w)

	headers := []string{"SESSION", "USERNAME", "RESULT", "REACHED", "CLICKS", "SIGNAL", "ERROR"}
	var rows [][]string
	for _, s := range sessions {
		result := "Failed"
		if s.Success {
			result = "Success"
		}
		rows = append(rows, []string{
			strconv.Itoa(s.SessionNumber),
			s.Username,
			result,
			s.ReachedState,
			strconv.Itoa(s.Clicks),
			strconv.FormatBool(s.SignalFound),
			valueOrDash(s.Error),
		})
	}
	printTable(w, headers, rows)
}

func valueOrDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

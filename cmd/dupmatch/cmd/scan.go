package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/solatis/dupmatch/internal/actions"
	"github.com/solatis/dupmatch/internal/core/config"
	"github.com/solatis/dupmatch/internal/match"
	"github.com/solatis/dupmatch/internal/progress"
	"github.com/solatis/dupmatch/internal/runspec"
	"github.com/solatis/dupmatch/internal/store"
	"github.com/solatis/dupmatch/internal/types"
)

var scanCmd = &cobra.Command{
	Use:   "scan <run.yaml>",
	Short: "Scan groups for duplicate combinations",
	Long: `Scan loads the groups named by a run definition, visits every combination
of one record per group and lists the combinations that match. With --apply
the groups' duplicate actions are carried out on the matches.

Interrupting the scan (Ctrl-C) cancels it; the matches found so far are still
listed, and applied when --apply is given.`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().String("condition", "", "override the run definition's condition")
	scanCmd.Flags().Bool("apply", false, "apply duplicate actions to the matches")
	scanCmd.Flags().Int("max-rows", 0, "match rows applied per batch (default from config)")
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, logger, st, err := setup(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	spec, err := runspec.Load(args[0])
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("condition") {
		spec.Condition, _ = cmd.Flags().GetString("condition")
	}
	run, err := spec.Build(ctx, st)
	if err != nil {
		return err
	}

	runID := types.NewRunID()
	logger = logger.With("run_id", string(runID))
	started := types.RunIDTime(runID)
	logger.Info("scan started",
		"definition", args[0],
		"groups", len(run.Groups),
		"simple", run.Condition == nil,
		"started_at", started.Format(time.RFC3339))

	engine := match.NewEngine(match.Config{
		Source:           st,
		ProgressInterval: cfg.ProgressInterval,
		Logger:           logger,
	})
	task := engine.Start(ctx, run.Groups, run.Condition)
	res, err := followTask(task, os.Stderr, isTerminal(os.Stderr))
	if err != nil {
		return err
	}

	logger.Info("scan ended",
		"state", res.State.String(),
		"matches", len(res.Matches),
		"elapsed", time.Since(started).Round(time.Millisecond).String())

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, renderMatches(res.Matches, run.Groups))
	fmt.Fprintf(out, "%d match(es) in %d combination(s), %s\n", len(res.Matches), res.Combinations, res.State)

	apply, _ := cmd.Flags().GetBool("apply")
	if !apply || len(res.Matches) == 0 {
		return nil
	}

	maxRows := cfg.MaxRows
	if cmd.Flags().Changed("max-rows") {
		maxRows, _ = cmd.Flags().GetInt("max-rows")
	}
	// A cancelled scan still applies what it found; only a second
	// interrupt stops the actions.
	applyCtx, stopApply := signal.NotifyContext(context.WithoutCancel(cmd.Context()), os.Interrupt, syscall.SIGTERM)
	defer stopApply()

	sum, err := applyMatches(applyCtx, cfg, st, logger, res.Matches, maxRows)
	fmt.Fprintln(out, formatSummary(sum))
	return err
}

// followTask drains task events, drawing progress when w is a terminal,
// and returns the run's outcome.
func followTask(task *match.Task, w io.Writer, showProgress bool) (match.Result, error) {
	drawn := false
	for ev := range task.Events() {
		if ev.Kind != match.EventProgress || !showProgress {
			continue
		}
		fmt.Fprintf(w, "\r\033[K%s", formatProgress(ev.Progress))
		drawn = true
	}
	if drawn {
		fmt.Fprintln(w)
	}
	return task.Wait()
}

func formatProgress(u progress.Update) string {
	line := fmt.Sprintf("%s: %d%% (%d/%d)", u.Activity, u.Percent, u.Current, u.Total)
	if u.HasETA {
		line += " eta " + u.ETA.String()
	}
	return line
}

// renderMatches lists one row per match: every member's compared values
// and resolved action.
func renderMatches(matches []types.MatchTuple, groups []match.Group) string {
	headers := []string{"#"}
	aligns := []columnAlignment{alignRight}
	for i := range groups {
		headers = append(headers, fmt.Sprintf("G%d", i+1), fmt.Sprintf("G%d action", i+1))
		aligns = append(aligns, alignLeft, alignLeft)
	}

	rows := make([][]string, 0, len(matches))
	for n, m := range matches {
		row := []string{strconv.Itoa(n + 1)}
		for _, member := range m.Members {
			row = append(row, memberValues(member), memberAction(member))
		}
		rows = append(rows, row)
	}
	return renderTable(headers, rows, aligns)
}

func memberValues(m types.ComparableRecord) string {
	values := make([]string, len(m.Compare))
	for i, f := range m.Compare {
		values[i] = f.Value.String()
	}
	return strings.Join(values, " | ")
}

func memberAction(m types.ComparableRecord) string {
	switch m.Action.Kind {
	case types.ActionTag:
		return "tag " + m.Tag
	case types.ActionReplace:
		return fmt.Sprintf("%s = %q", m.Action, m.Replacement)
	default:
		return m.Action.String()
	}
}

// applyMatches applies actions batch by batch while holding the apply lock,
// so two processes never change the same store at once.
func applyMatches(ctx context.Context, cfg *config.Config, st *store.Store, logger *slog.Logger, matches []types.MatchTuple, maxRows int) (actions.Summary, error) {
	var total actions.Summary

	if err := os.MkdirAll(filepath.Dir(cfg.LockFile), 0o755); err != nil {
		return total, fmt.Errorf("create lock directory: %w", err)
	}
	lock := flock.New(cfg.LockFile)
	ok, err := lock.TryLock()
	if err != nil {
		return total, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return total, errors.New("another dupmatch instance is applying actions")
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Warn("failed to release lock", "path", cfg.LockFile, "error", err)
		}
	}()

	applier := actions.NewApplier(st, logger)
	rest := matches
	for len(rest) > 0 {
		sum, remaining, err := applier.Apply(ctx, rest, maxRows)
		total = addSummary(total, sum)
		if err != nil {
			return total, fmt.Errorf("apply stopped with %d row(s) left: %w", len(remaining), err)
		}
		rest = remaining
	}
	return total, nil
}

func addSummary(a, b actions.Summary) actions.Summary {
	return actions.Summary{
		Rows:        a.Rows + b.Rows,
		Removed:     a.Removed + b.Removed,
		Suspended:   a.Suspended + b.Suspended,
		Unsuspended: a.Unsuspended + b.Unsuspended,
		Tagged:      a.Tagged + b.Tagged,
		Replaced:    a.Replaced + b.Replaced,
		Skipped:     a.Skipped + b.Skipped,
	}
}

func formatSummary(s actions.Summary) string {
	return fmt.Sprintf("applied %d row(s): %d removed, %d suspended, %d unsuspended, %d tagged, %d replaced, %d skipped",
		s.Rows, s.Removed, s.Suspended, s.Unsuspended, s.Tagged, s.Replaced, s.Skipped)
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

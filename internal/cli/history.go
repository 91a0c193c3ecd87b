package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"fileman/internal/history"
	"fileman/internal/ops"
)

const defaultRecent = 20

type historyFlags struct {
	recent int
	op     string
	kind   string
	failed bool
	since  string
	stats  bool
	days   int
	json   bool
	prune  int

	sinceTime time.Time
}

func newHistoryCmd(g *globalFlags, streams Streams) *cobra.Command {
	h := &historyFlags{}
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show previously executed operations",
		Example: `  fileman history --recent 10      # 10 most recent operations
  fileman history --op install     # recent installs
  fileman history --failed         # recent failures
  fileman history --kind not_found # recent failures of one kind
  fileman history --since 24h      # everything from the last day
  fileman history --since 2026-01-31
  fileman history --stats --days 7 # totals for the last week
  fileman history --prune 90       # drop records older than 90 days`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd.Context(), g, h, streams)
		},
	}
	f := cmd.Flags()
	f.IntVar(&h.recent, "recent", 0, "Show the N most recent operations")
	f.StringVar(&h.op, "op", "", "Only show one operation kind (install, delete, move)")
	f.BoolVar(&h.failed, "failed", false, "Only show failed operations")
	f.StringVar(&h.kind, "kind", "", "Only show failures of one error kind (e.g. not_found, network_error)")
	f.StringVar(&h.since, "since", "", "Show every operation since a duration ago (24h) or a date (2006-01-02)")
	f.BoolVar(&h.stats, "stats", false, "Show aggregated statistics")
	f.IntVar(&h.days, "days", 30, "Window in days for --stats")
	f.BoolVar(&h.json, "json", false, "Output in JSON format")
	f.IntVar(&h.prune, "prune", 0, "Delete records older than DAYS and compact the database")
	return cmd
}

func (h *historyFlags) validate() error {
	if h.recent < 0 || h.days <= 0 || h.prune < 0 {
		return usageErrorf("--recent, --days and --prune must be positive")
	}
	switch ops.Kind(h.op) {
	case "", ops.KindInstall, ops.KindDelete, ops.KindMove:
	default:
		return usageErrorf("--op must be one of install, delete, move; got %q", h.op)
	}
	if h.kind != "" {
		if _, ok := ops.ParseErrorKind(h.kind); !ok {
			return usageErrorf("--kind %q is not an error kind", h.kind)
		}
	}
	if h.since != "" {
		t, err := parseSince(h.since, time.Now())
		if err != nil {
			return err
		}
		h.sinceTime = t
	}
	return nil
}

// parseSince accepts a Go duration counted back from now or a local date
func parseSince(s string, now time.Time) (time.Time, error) {
	if d, err := time.ParseDuration(s); err == nil {
		if d <= 0 {
			return time.Time{}, usageErrorf("--since duration must be positive; got %q", s)
		}
		return now.Add(-d), nil
	}
	if t, err := time.ParseInLocation("2006-01-02", s, time.Local); err == nil {
		return t, nil
	}
	return time.Time{}, usageErrorf("--since wants a duration like 24h or a date like 2006-01-02; got %q", s)
}

func runHistory(ctx context.Context, g *globalFlags, h *historyFlags, streams Streams) error {
	if err := h.validate(); err != nil {
		return err
	}
	a, err := newApp(g, streams)
	if err != nil {
		return err
	}
	defer a.Close()

	if !a.cfg.History.Enabled {
		return usageErrorf("history is disabled in %s", configName(a.cfg.Source))
	}
	db, err := a.openHistory()
	if err != nil {
		return runtimeError(fmt.Errorf("open history %s: %w", a.cfg.History.Path, err))
	}

	limit := h.recent
	if limit == 0 {
		limit = defaultRecent
	}

	var records []history.Record
	switch {
	case h.prune > 0:
		return pruneHistory(ctx, a, db, h.prune)
	case h.stats:
		stats, err := db.Stats(ctx, h.days)
		if err != nil {
			return runtimeError(fmt.Errorf("get statistics: %w", err))
		}
		if h.json {
			return printJSON(streams.Out, stats)
		}
		printStats(streams.Out, stats, h.days)
		return nil
	case h.since != "":
		records, err = db.Between(ctx, h.sinceTime, time.Now())
	case h.kind != "":
		records, err = db.ByErrorKind(ctx, h.kind, limit)
	case h.failed:
		records, err = db.Failed(ctx, limit)
	case h.op != "":
		records, err = db.ByOp(ctx, h.op, limit)
	default:
		records, err = db.Recent(ctx, limit)
	}
	if err != nil {
		return runtimeError(fmt.Errorf("query history: %w", err))
	}

	if h.json {
		return printJSON(streams.Out, records)
	}
	printRecords(streams.Out, records)
	return nil
}

func pruneHistory(ctx context.Context, a *app, db *history.DB, days int) error {
	if a.flags.dryRun {
		printSuccess(a.streams.Out, fmt.Sprintf("[dry run] would delete records older than %d days", days))
		return nil
	}
	n, err := db.DeleteOlderThan(ctx, days)
	if err != nil {
		return runtimeError(fmt.Errorf("prune history: %w", err))
	}
	if err := db.Vacuum(); err != nil {
		a.logger.Warn().Err(err).Msg("vacuum failed")
	}
	a.logger.Info().Int64("removed", n).Int("days", days).Msg("history pruned")
	printSuccess(a.streams.Out, fmt.Sprintf("removed %d records older than %d days", n, days))
	return nil
}

func configName(source string) string {
	if source == "" {
		return "the default configuration"
	}
	return source
}

func printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return runtimeError(err)
	}
	_, _ = fmt.Fprintln(w, string(data))
	return nil
}

func printRecords(w io.Writer, records []history.Record) {
	if len(records) == 0 {
		_, _ = fmt.Fprintln(w, "No records found")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tTimestamp\tOp\tOutcome\tSize\tTarget\tDetail")
	_, _ = fmt.Fprintln(tw, "--\t---------\t--\t-------\t----\t------\t------")

	for _, r := range records {
		timestamp := r.Timestamp.Local().Format("2006-01-02 15:04:05")
		target := r.Target
		if r.Source != "" {
			target = r.Source + " -> " + r.Target
		}
		outcome := r.Outcome
		if r.ErrorKind != "" {
			outcome = outcome + "/" + r.ErrorKind
		}
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, timestamp, r.Op, outcome, formatBytes(r.Bytes), target, r.Detail)
	}
	_ = tw.Flush()
}

func printStats(w io.Writer, s *history.Stats, days int) {
	printHeader(w, fmt.Sprintf("Operation Statistics (Last %d days)", days))
	_, _ = fmt.Fprintf(w, "Period: %s to %s\n\n", s.StartDate.Format("2006-01-02"), s.EndDate.Format("2006-01-02"))
	_, _ = fmt.Fprintf(w, "Total:       %d\n", s.Total)
	_, _ = fmt.Fprintf(w, "Succeeded:   %d\n", s.Succeeded)
	_, _ = fmt.Fprintf(w, "Failed:      %d\n", s.Failed)
	_, _ = fmt.Fprintf(w, "Dry runs:    %d\n", s.DryRuns)
	_, _ = fmt.Fprintf(w, "Bytes:       %s\n", formatBytes(s.Bytes))

	printCounts(w, "By Operation:", s.ByOp)
	printCounts(w, "By Error Kind:", s.ByErrorKind)
}

func printCounts(w io.Writer, title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	_, _ = fmt.Fprintf(w, "\n%s\n", title)
	for _, k := range keys {
		_, _ = fmt.Fprintf(w, "  %-18s %d\n", k, counts[k])
	}
}

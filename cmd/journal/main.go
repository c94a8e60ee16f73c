// Command journal prints what a reasoner run left in its SQLite journal:
// the latest transitions and the lifecycle of every option.
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"github.com/talgya/mini-reasoner/internal/clock"
	"github.com/talgya/mini-reasoner/internal/engine"
	"github.com/talgya/mini-reasoner/internal/persistence"
	"github.com/talgya/mini-reasoner/internal/reasoner"
)

func main() {
	dbPath := flag.String("db", "reasoner.db", "path to the journal database")
	limit := flag.Int("limit", 20, "number of transitions to show")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	slog.SetDefault(logger)

	info, err := os.Stat(*dbPath)
	if err != nil {
		slog.Error("journal not found", "path", *dbPath, "error", err)
		os.Exit(1)
	}
	db, err := persistence.Open(*dbPath)
	if err != nil {
		slog.Error("failed to open journal", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := report(os.Stdout, db, *limit, info.Size()); err != nil {
		slog.Error("failed to read journal", "error", err)
		os.Exit(1)
	}
}

func report(out io.Writer, db *persistence.DB, limit int, size int64) error {
	fmt.Fprintf(out, "journal: %s\n", humanize.Bytes(uint64(size)))
	if runID, err := db.GetMeta("run_id"); err == nil {
		fmt.Fprintf(out, "last run: %s\n", runID)
	}
	if raw, err := db.GetMeta("last_tick"); err == nil {
		if tick, err := strconv.ParseUint(raw, 10, 64); err == nil {
			fmt.Fprintf(out, "saved at tick %s", humanize.Comma(int64(tick)))
		}
		if raw, err := db.GetMeta("sim_time"); err == nil {
			if t, err := strconv.ParseFloat(raw, 64); err == nil {
				fmt.Fprintf(out, " (%s simulated)", engine.FormatSimTime(t))
			}
		}
		fmt.Fprintln(out)
	}

	counts, err := db.CountTransitions()
	if err != nil {
		return fmt.Errorf("count transitions: %w", err)
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	fmt.Fprintf(out, "\n%s transitions journaled\n", humanize.Comma(int64(total)))

	events, err := db.RecentTransitions(limit)
	if err != nil {
		return fmt.Errorf("recent transitions: %w", err)
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TICK\tTIME\tAGENT\tFROM\tTO")
	for _, e := range events {
		from := e.From
		if from == "" {
			from = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", humanize.Comma(int64(e.Tick)), engine.FormatSimTime(e.Time), e.Agent, from, e.To)
	}
	tw.Flush()

	states, err := db.LoadOptionStates()
	if err != nil {
		return fmt.Errorf("option states: %w", err)
	}
	names := make([]string, 0, len(states))
	for name := range states {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(out)
	tw = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "AGENT\tOPTION\tACTIVE\tLAST START\tLAST STOP\tSWITCHES")
	for _, name := range names {
		for _, s := range states[name] {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
				name, s.Name, activeMark(s), stamp(s.LastStart), stamp(s.LastStop),
				humanize.Comma(int64(counts[name])))
		}
	}
	return tw.Flush()
}

func activeMark(s reasoner.OptionState) string {
	if s.Active {
		return "*"
	}
	return ""
}

func stamp(t float64) string {
	if clock.IsNever(t) {
		return "never"
	}
	return humanize.FtoaWithDigits(t, 2) + "s"
}

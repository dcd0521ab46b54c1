package stats

import (
	"io"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
)

// RenderTable writes a human-readable run summary.
func RenderTable(w io.Writer, snap Snapshot) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)

	tw.AppendHeader(table.Row{"Metric", "Value"})
	tw.AppendRow(table.Row{"Games processed", humanize.Comma(int64(snap.Games))})
	tw.AppendRow(table.Row{"Games skipped", humanize.Comma(int64(snap.Skipped))})
	tw.AppendRow(table.Row{"Blunder candidates", humanize.Comma(int64(snap.Candidates))})
	tw.AppendRow(table.Row{"Puzzles accepted", color.GreenString(humanize.Comma(int64(snap.Accepted)))})
	tw.AppendRow(table.Row{"Candidates rejected", humanize.Comma(int64(snap.Rejected))})
	tw.AppendRow(table.Row{"Elapsed", snap.Elapsed.Round(time.Second).String()})

	appendBreakdown(tw, "Objective", snap.Objectives)
	appendBreakdown(tw, "Phase", snap.Phases)
	appendBreakdown(tw, "Rejected", snap.Rejections)

	tw.Render()
}

// appendBreakdown adds one row per category in deterministic key order.
func appendBreakdown(tw table.Writer, label string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}

	tw.AppendSeparator()

	for _, key := range sortedKeys(counts) {
		tw.AppendRow(table.Row{label + ": " + key, humanize.Comma(int64(counts[key]))})
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

package core

// quality.go accumulates per-source quality counters and renders the report.
//
// Counters are only ever incremented by the stages as they run; the report
// reads them as-is and never recomputes from loaded state, so records that
// never reached storage are still accounted for.

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/JonMunkholm/fleximart-etl/internal/schema"
)

// ReportTitle is the first line of the text report.
const ReportTitle = "Data Quality Report (ETL Summary):"

// QualityCounters holds the counts of one source.
type QualityCounters struct {
	Source string `json:"source"`
	File   string `json:"file"`

	Processed         int `json:"processed"`
	DuplicatesRemoved int `json:"duplicates_removed"`
	MissingHandled    int `json:"missing_handled"`
	Loaded            int `json:"loaded"`

	DroppedMissing   int `json:"dropped_missing"`
	DroppedIntegrity int `json:"dropped_integrity"`
	DroppedMalformed int `json:"dropped_malformed"`
	DroppedStorage   int `json:"dropped_storage"`

	// FieldsMalformed counts field values downgraded to missing.
	FieldsMalformed int `json:"fields_malformed"`
	// CategoriesUnrecognized counts products whose category is outside the vocabulary.
	CategoriesUnrecognized int `json:"categories_unrecognized"`
}

// Reject counts a rejected record under its reason.
func (c *QualityCounters) Reject(r Rejection) {
	switch r.Reason {
	case ReasonMalformedRow:
		c.DroppedMalformed++
	case ReasonDuplicate:
		c.DuplicatesRemoved++
	case ReasonMissingRequired:
		c.DroppedMissing++
	case ReasonUnresolvedReference, ReasonDuplicateKey:
		c.DroppedIntegrity++
	case ReasonBatchFailed:
		c.DroppedStorage++
	}
}

// Dropped is the number of records excluded for any reason.
func (c *QualityCounters) Dropped() int {
	return c.DuplicatesRemoved + c.DroppedMissing + c.DroppedIntegrity + c.DroppedMalformed + c.DroppedStorage
}

// NotAttempted is the number of records still in flight when the run stopped.
// It is zero for a completed run.
func (c *QualityCounters) NotAttempted() int {
	return c.Processed - c.Loaded - c.Dropped()
}

// Report is the final summary of a run.
type Report struct {
	RunID      string
	State      Stage
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
	Sources    []QualityCounters
}

// newCounters creates zeroed counters for every source, in processing order.
func newCounters(paths map[string]string) map[string]*QualityCounters {
	m := make(map[string]*QualityCounters, len(schema.Sources))
	for _, src := range schema.Sources {
		file := src.FileName
		if p, ok := paths[src.Key]; ok && p != "" {
			file = filepath.Base(p)
		}
		m[src.Key] = &QualityCounters{Source: src.Key, File: file}
	}
	return m
}

// Counters returns the counters of source, if present.
func (r *Report) Counters(source string) (QualityCounters, bool) {
	for _, c := range r.Sources {
		if c.Source == source {
			return c, true
		}
	}
	return QualityCounters{}, false
}

// Render produces the fixed-format text report.
func (r *Report) Render() string {
	var b strings.Builder
	b.WriteString(ReportTitle)
	b.WriteString("\n")

	for _, c := range r.Sources {
		fmt.Fprintf(&b, "\nFile: %s\n", c.File)
		fmt.Fprintf(&b, "- Records Processed: %d\n", c.Processed)
		fmt.Fprintf(&b, "- Duplicates Removed: %d\n", c.DuplicatesRemoved)
		fmt.Fprintf(&b, "- Missing Values Handled: %d\n", c.MissingHandled)
		fmt.Fprintf(&b, "- Records Loaded Successfully: %d\n", c.Loaded)
		fmt.Fprintf(&b, "- Dropped (missing required): %d\n", c.DroppedMissing)
		fmt.Fprintf(&b, "- Dropped (integrity): %d\n", c.DroppedIntegrity)
		fmt.Fprintf(&b, "- Dropped (malformed): %d\n", c.DroppedMalformed)
		fmt.Fprintf(&b, "- Dropped (storage): %d\n", c.DroppedStorage)
		if n := c.NotAttempted(); n > 0 {
			fmt.Fprintf(&b, "- Not Attempted: %d\n", n)
		}
		if c.FieldsMalformed > 0 {
			fmt.Fprintf(&b, "- Malformed Fields Downgraded: %d\n", c.FieldsMalformed)
		}
		if c.CategoriesUnrecognized > 0 {
			fmt.Fprintf(&b, "- Unrecognized Categories: %d\n", c.CategoriesUnrecognized)
		}
	}

	fmt.Fprintf(&b, "\nRun: %s (%s)\n", r.RunID, r.State)
	if r.Error != "" {
		fmt.Fprintf(&b, "Error: %s\n", r.Error)
	}
	return b.String()
}

// WriteTo writes the rendered report to w.
func (r *Report) WriteTo(w io.Writer) (int64, error) {
	n, err := io.WriteString(w, r.Render())
	return int64(n), err
}

// WriteTable writes a console summary table. useColor highlights the state.
func (r *Report) WriteTable(w io.Writer, useColor bool) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Source", "Processed", "Duplicates", "Missing Handled", "Loaded", "Dropped", "Not Attempted"})
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	for _, c := range r.Sources {
		table.Append([]string{
			c.Source,
			strconv.Itoa(c.Processed),
			strconv.Itoa(c.DuplicatesRemoved),
			strconv.Itoa(c.MissingHandled),
			strconv.Itoa(c.Loaded),
			strconv.Itoa(c.Dropped() - c.DuplicatesRemoved),
			strconv.Itoa(c.NotAttempted()),
		})
	}
	table.Render()

	state := r.State.String()
	if useColor {
		switch r.State {
		case StageDone:
			state = color.GreenString(state)
		case StageFailed:
			state = color.RedString(state)
		default:
			state = color.YellowString(state)
		}
	}
	fmt.Fprintf(w, "\nrun %s finished: %s\n", r.RunID, state)
}

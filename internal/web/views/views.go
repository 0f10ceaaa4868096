// Package views renders the HTML pages of the web surface.
//
// Components are written in .templ files; the *_templ.go files are
// generated with `templ generate` and committed.
package views

import (
	"github.com/JonMunkholm/fleximart-etl/internal/core"
	"github.com/JonMunkholm/fleximart-etl/internal/store"
)

//go:generate templ generate

// ReportData is the input of ReportPage.
type ReportData struct {
	Run     *store.RunSummary // nil when no run was recorded
	Running bool
}

// counterCells lists the numeric columns of a counters row in table order.
func counterCells(c core.QualityCounters) []int {
	return []int{
		c.Processed, c.DuplicatesRemoved, c.MissingHandled, c.Loaded,
		c.DroppedMissing, c.DroppedIntegrity, c.DroppedMalformed, c.DroppedStorage,
	}
}

func rejectionsPath(runID string) string {
	return "/api/runs/" + runID + "/rejections"
}

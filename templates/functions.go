// Package templates holds the template helpers shared by the HTML report.
package templates

import (
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/op-stepper/types"
)

// GetTemplateFunc returns the template functions used by the HTML report
func GetTemplateFunc() template.FuncMap {
	return template.FuncMap{
		"formatDuration": FormatDuration,
		"getStatusClass": getStatusString,
		"getStatusText":  func(status types.Status) string { return string(status) },
		"getOverallStatus": func(cases []*types.CaseResult) types.Status {
			return OverallStatus(cases)
		},
		"add": func(a, b int) int {
			return a + b
		},
	}
}

// FormatDuration prints sub-second durations in milliseconds
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return d.Truncate(time.Millisecond).String()
}

// OverallStatus is the worst case status, SKIPPED when there are no cases
func OverallStatus(cases []*types.CaseResult) types.Status {
	if len(cases) == 0 {
		return types.StatusSkipped
	}
	worst := types.StatusPass
	for _, c := range cases {
		worst = types.Worst(worst, c.Status)
	}
	return worst
}

// getStatusString returns a css class for a status
func getStatusString(status types.Status) string {
	switch status {
	case types.StatusPass, types.StatusFail, types.StatusBroken, types.StatusSkipped:
		return strings.ToLower(string(status))
	case types.StatusNotComplete:
		return "incomplete"
	default:
		return "unknown"
	}
}

// Package reporting renders run results for humans.
package reporting

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ethereum-optimism/infra/op-stepper/runner"
	"github.com/ethereum-optimism/infra/op-stepper/types"
)

// ResultFormatter is responsible for formatting and displaying run results
type ResultFormatter interface {
	FormatResults(result *runner.RunResult) error
}

// ConsoleFormatter prints a table of cases and their steps
type ConsoleFormatter struct {
	logger    log.Logger
	out       io.Writer
	showSteps bool
	colored   bool
}

// NewConsoleFormatter creates a formatter writing to out, stdout when nil
func NewConsoleFormatter(logger log.Logger, out io.Writer, showSteps bool) *ConsoleFormatter {
	colored := false
	if out == nil {
		out = os.Stdout
		colored = true
	}
	return &ConsoleFormatter{
		logger:    logger,
		out:       out,
		showSteps: showSteps,
		colored:   colored,
	}
}

// FormatResults renders the table and a one-line summary
func (f *ConsoleFormatter) FormatResults(result *runner.RunResult) error {
	if result == nil {
		return fmt.Errorf("no run result to format")
	}
	f.logger.Info("Printing results...", "runID", result.RunID)

	t := table.NewWriter()
	t.SetOutputMirror(f.out)
	t.SetTitle(fmt.Sprintf("Step Run Results (%s)", formatDuration(result.Duration())))

	t.AppendHeader(table.Row{
		"Type", "ID", "Driver", "Duration", "Steps", "Passed", "Failed", "Broken", "Skipped", "Status", "Error",
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Type", AutoMerge: true},
		{Name: "ID", WidthMax: 50, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Steps", Align: text.AlignRight},
		{Name: "Passed", Align: text.AlignRight},
		{Name: "Failed", Align: text.AlignRight},
		{Name: "Broken", Align: text.AlignRight},
		{Name: "Skipped", Align: text.AlignRight},
		{Name: "Error", WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
	})

	totals := map[types.Status]int{}
	totalSteps := 0
	for _, key := range result.Keys() {
		cr := result.Cases[key]
		counts := cr.Counts()
		for s, n := range counts {
			totals[s] += n
		}
		totalSteps += len(cr.Steps)

		caseErr := ""
		if cr.Error != nil {
			caseErr = cr.Error.Error()
		}
		t.AppendRow(table.Row{
			"Case",
			key,
			cr.Driver,
			formatDuration(cr.Duration()),
			len(cr.Steps),
			counts[types.StatusPass],
			counts[types.StatusFail],
			counts[types.StatusBroken],
			counts[types.StatusSkipped],
			getResultString(cr.Status),
			caseErr,
		})

		if f.showSteps {
			for i, step := range cr.Steps {
				prefix := "├─"
				if i == len(cr.Steps)-1 {
					prefix = "└─"
				}
				stepErr := ""
				if step.Failure != nil {
					stepErr = step.Failure.Message
				}
				t.AppendRow(table.Row{
					"",
					fmt.Sprintf("%s %s.%s", prefix, step.TestObject, step.Name),
					"",
					formatDuration(step.Duration()),
					"",
					boolToInt(step.Status == types.StatusPass),
					boolToInt(step.Status == types.StatusFail),
					boolToInt(step.Status == types.StatusBroken),
					boolToInt(step.Status == types.StatusSkipped),
					getResultString(step.Status),
					stepErr,
				})
			}
		}
		t.AppendSeparator()
	}

	if f.colored {
		switch result.Status() {
		case types.StatusPass:
			t.SetStyle(table.StyleColoredBlackOnGreenWhite)
		case types.StatusSkipped, types.StatusBroken:
			t.SetStyle(table.StyleColoredBlackOnYellowWhite)
		default:
			t.SetStyle(table.StyleColoredBlackOnRedWhite)
		}
	}

	t.AppendFooter(table.Row{
		"TOTAL",
		fmt.Sprintf("%d cases", len(result.Cases)),
		"",
		formatDuration(result.Duration()),
		totalSteps,
		totals[types.StatusPass],
		totals[types.StatusFail],
		totals[types.StatusBroken],
		totals[types.StatusSkipped],
		getResultString(result.Status()),
		"",
	})

	t.Render()

	_, err := fmt.Fprintln(f.out, result.String())
	return err
}

// getResultString returns a short marker for a status
func getResultString(status types.Status) string {
	switch status {
	case types.StatusPass:
		return "✓ pass"
	case types.StatusSkipped:
		return "- skip"
	case types.StatusBroken:
		return "! broken"
	case types.StatusNotComplete:
		return "✗ incomplete"
	default:
		return "✗ fail"
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Helper function to format duration to seconds with 1 decimal place
func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// Package logging writes the results of a run to files under a per-run directory.
package logging

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/acarl005/stripansi"
	"github.com/ethereum-optimism/infra/op-stepper/types"
)

const (
	RunDirectoryPrefix = "testrun-"
	AllLogsFileName    = "all.log"
	SummaryFileName    = "summary.log"
	PassedDirName      = "passed"
	FailedDirName      = "failed"
)

// ResultSink is one way of consuming case results
type ResultSink interface {
	// Consume processes a single case result
	Consume(result *types.CaseResult, runID string) error
	// Complete is called when all results of the run have been consumed
	Complete(runID string) error
}

// FileLogger writes case results of runs into <baseDir>/testrun-<runID>/
type FileLogger struct {
	baseDir string
	mu      sync.Mutex
	sinks   []ResultSink
	files   map[string]*os.File
}

// NewFileLogger creates a file logger with the default sinks: all.log, one
// file per case, results.jsonl and results.html.
func NewFileLogger(baseDir string) (*FileLogger, error) {
	if baseDir == "" {
		return nil, errors.New("baseDir cannot be empty")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", baseDir, err)
	}

	l := &FileLogger{
		baseDir: baseDir,
		files:   make(map[string]*os.File),
	}
	l.sinks = []ResultSink{
		&AllLogsFileSink{logger: l},
		&PerCaseFileSink{logger: l},
		&JSONLinesSink{logger: l},
		newHTMLSink(l),
	}
	return l, nil
}

// GetBaseDir returns the directory holding all run directories
func (l *FileLogger) GetBaseDir() string {
	return l.baseDir
}

// GetDirectoryForRunID returns the directory of one run
func (l *FileLogger) GetDirectoryForRunID(runID string) (string, error) {
	if runID == "" {
		return "", errors.New("runID cannot be empty")
	}
	return filepath.Join(l.baseDir, RunDirectoryPrefix+runID), nil
}

// ReportCase feeds a case result to every sink
func (l *FileLogger) ReportCase(ctx context.Context, runID string, result *types.CaseResult) error {
	return l.LogCaseResult(result, runID)
}

// LogCaseResult feeds a case result to every sink
func (l *FileLogger) LogCaseResult(result *types.CaseResult, runID string) error {
	if result == nil {
		return errors.New("result cannot be nil")
	}
	if _, err := l.GetDirectoryForRunID(runID); err != nil {
		return err
	}
	for _, sink := range l.sinks {
		if err := sink.Consume(result, runID); err != nil {
			return fmt.Errorf("error in sink: %w", err)
		}
	}
	return nil
}

// LogSummary writes summary.log for the run
func (l *FileLogger) LogSummary(summary string, runID string) error {
	dir, err := l.GetDirectoryForRunID(runID)
	if err != nil {
		return err
	}
	return l.append(filepath.Join(dir, SummaryFileName), stripansi.Strip(summary))
}

// Complete finalizes all sinks of the run and closes its files
func (l *FileLogger) Complete(runID string) error {
	dir, err := l.GetDirectoryForRunID(runID)
	if err != nil {
		return err
	}

	var errs []error
	for _, sink := range l.sinks {
		if err := sink.Complete(runID); err != nil {
			errs = append(errs, fmt.Errorf("error completing sink: %w", err))
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for path, f := range l.files {
		if strings.HasPrefix(path, dir+string(filepath.Separator)) {
			if err := f.Close(); err != nil {
				errs = append(errs, err)
			}
			delete(l.files, path)
		}
	}
	return errors.Join(errs...)
}

// append writes to a file that stays open until Complete
func (l *FileLogger) append(path string, content string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, ok := l.files[path]
	if !ok {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", path, err)
		}
		var err error
		f, err = os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", path, err)
		}
		l.files[path] = f
	}
	if _, err := f.WriteString(content); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// AllLogsFileSink writes every case of a run into all.log
type AllLogsFileSink struct {
	logger *FileLogger
}

// Consume appends the case to all.log
func (s *AllLogsFileSink) Consume(result *types.CaseResult, runID string) error {
	dir, err := s.logger.GetDirectoryForRunID(runID)
	if err != nil {
		return err
	}
	return s.logger.append(filepath.Join(dir, AllLogsFileName), formatCase(result))
}

// Complete is a no-op for AllLogsFileSink
func (s *AllLogsFileSink) Complete(runID string) error {
	return nil
}

// PerCaseFileSink writes one file per case into passed/ or failed/
type PerCaseFileSink struct {
	logger *FileLogger
}

// Consume writes the case file
func (s *PerCaseFileSink) Consume(result *types.CaseResult, runID string) error {
	dir, err := s.logger.GetDirectoryForRunID(runID)
	if err != nil {
		return err
	}

	sub := FailedDirName
	if result.Status == types.StatusPass || result.Status == types.StatusSkipped {
		sub = PassedDirName
	}
	if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", sub, err)
	}

	name := safeFilename(result.Case)
	if result.Driver != "" {
		name += "@" + safeFilename(result.Driver)
	}
	path := filepath.Join(dir, sub, name+".log")
	if err := os.WriteFile(path, []byte(formatCase(result)), 0o644); err != nil {
		return fmt.Errorf("failed to write case log %s: %w", path, err)
	}
	return nil
}

// Complete is a no-op for PerCaseFileSink
func (s *PerCaseFileSink) Complete(runID string) error {
	return nil
}

// safeFilename converts a string to a safe filename by replacing problematic characters
func safeFilename(s string) string {
	return strings.NewReplacer(
		"/", "_", "\\", "_", ":", "_", "*", "_", "?", "_",
		"\"", "_", "<", "_", ">", "_", "|", "_", " ", "_", "#", "_",
	).Replace(s)
}

func formatCase(result *types.CaseResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "\n=== CASE %s ===\n", result.Case)
	fmt.Fprintf(&b, "Status:   %s\n", result.Status)
	if result.TestCaseID != "" {
		fmt.Fprintf(&b, "ID:       %s\n", result.TestCaseID)
	}
	fmt.Fprintf(&b, "Driver:   %s\n", result.Driver)
	fmt.Fprintf(&b, "Worker:   %s\n", result.WorkerID)
	fmt.Fprintf(&b, "Duration: %s\n", formatDuration(result.Duration()))
	if result.Truncated {
		fmt.Fprintf(&b, "Stopped early: stop-on-error\n")
	}
	if result.Error != nil {
		fmt.Fprintf(&b, "Error:    %s\n", stripansi.Strip(result.Error.Error()))
	}

	for i, step := range result.Steps {
		fmt.Fprintf(&b, "\n  [%d] %s.%s  %s", i+1, step.TestObject, step.Name, step.Status)
		if step.Attempts > 1 {
			fmt.Fprintf(&b, " (%d attempts)", step.Attempts)
		}
		fmt.Fprintf(&b, "  %s\n", formatDuration(step.Duration()))
		for _, line := range step.Logs {
			fmt.Fprintf(&b, "      %s\n", stripansi.Strip(line))
		}
		if step.Failure != nil {
			fmt.Fprintf(&b, "      FAILURE: %s\n", stripansi.Strip(step.Failure.Message))
			if step.Failure.Trace != "" {
				fmt.Fprintf(&b, "%s\n", indentText(stripansi.Strip(step.Failure.Trace), "        "))
			}
		}
		for _, a := range step.Attachments {
			fmt.Fprintf(&b, "      attachment: %s\n", a)
		}
	}
	return b.String()
}

// indentText adds indentation to each non-empty line
func indentText(text, indent string) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = indent + line
		}
	}
	return strings.Join(lines, "\n")
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(10 * time.Millisecond).String()
}

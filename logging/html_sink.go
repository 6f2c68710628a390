package logging

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ethereum-optimism/infra/op-stepper/types"
)

const (
	HTMLReportFileName = "results.html"
	htmlTemplateName   = "results.html.tmpl"
)

// HTMLSink collects the cases of a run and renders results.html once the run completes
type HTMLSink struct {
	logger *FileLogger

	mu    sync.Mutex
	cases map[string][]*types.CaseResult
}

type htmlReportData struct {
	RunID     string
	Generated time.Time
	Cases     []*types.CaseResult
}

func newHTMLSink(logger *FileLogger) *HTMLSink {
	return &HTMLSink{
		logger: logger,
		cases:  make(map[string][]*types.CaseResult),
	}
}

// Consume buffers the case until Complete
func (s *HTMLSink) Consume(result *types.CaseResult, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cases[runID] = append(s.cases[runID], result)
	return nil
}

// Complete writes the report and drops the buffered cases. Runs without cases
// still get a report.
func (s *HTMLSink) Complete(runID string) error {
	s.mu.Lock()
	cases := s.cases[runID]
	delete(s.cases, runID)
	s.mu.Unlock()

	dir, err := s.logger.GetDirectoryForRunID(runID)
	if err != nil {
		return err
	}
	tmpl, err := GetHTMLTemplate(htmlTemplateName)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, htmlReportData{
		RunID:     runID,
		Generated: time.Now(),
		Cases:     cases,
	}); err != nil {
		return fmt.Errorf("failed to render HTML report: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	path := filepath.Join(dir, HTMLReportFileName)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

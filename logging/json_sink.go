package logging

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/ethereum-optimism/infra/op-stepper/types"
)

const JSONLinesFileName = "results.jsonl"

// JSONLinesSink writes one JSON object per case to results.jsonl, for tools
// that post-process a run.
type JSONLinesSink struct {
	logger *FileLogger
}

// CaseRecord is the JSON form of a CaseResult
type CaseRecord struct {
	RunID      string       `json:"runId"`
	ID         string       `json:"id"`
	Case       string       `json:"case"`
	TestCaseID string       `json:"testCaseId,omitempty"`
	Status     types.Status `json:"status"`
	Truncated  bool         `json:"truncated,omitempty"`
	Error      string       `json:"error,omitempty"`
	Driver     string       `json:"driver"`
	Worker     string       `json:"worker"`
	Start      time.Time    `json:"start"`
	ElapsedMs  int64        `json:"elapsedMs"`
	Steps      []StepRecord `json:"steps"`
}

// StepRecord is the JSON form of a StepResult
type StepRecord struct {
	Name        string       `json:"name"`
	TestObject  string       `json:"testObject,omitempty"`
	Status      types.Status `json:"status"`
	Attempts    int          `json:"attempts"`
	ElapsedMs   int64        `json:"elapsedMs"`
	Failure     string       `json:"failure,omitempty"`
	Logs        []string     `json:"logs,omitempty"`
	Attachments []string     `json:"attachments,omitempty"`
}

// NewCaseRecord converts a case result for serialization
func NewCaseRecord(runID string, result *types.CaseResult) CaseRecord {
	rec := CaseRecord{
		RunID:      runID,
		ID:         result.ID,
		Case:       result.Case,
		TestCaseID: result.TestCaseID,
		Status:     result.Status,
		Truncated:  result.Truncated,
		Driver:     result.Driver,
		Worker:     result.WorkerID,
		Start:      result.Start,
		ElapsedMs:  result.Duration().Milliseconds(),
		Steps:      make([]StepRecord, 0, len(result.Steps)),
	}
	if result.Error != nil {
		rec.Error = result.Error.Error()
	}
	for _, s := range result.Steps {
		sr := StepRecord{
			Name:        s.Name,
			TestObject:  s.TestObject,
			Status:      s.Status,
			Attempts:    s.Attempts,
			ElapsedMs:   s.Duration().Milliseconds(),
			Logs:        s.Logs,
			Attachments: s.Attachments,
		}
		if s.Failure != nil {
			sr.Failure = s.Failure.Message
		}
		rec.Steps = append(rec.Steps, sr)
	}
	return rec
}

// Consume appends the case as one JSON line
func (s *JSONLinesSink) Consume(result *types.CaseResult, runID string) error {
	dir, err := s.logger.GetDirectoryForRunID(runID)
	if err != nil {
		return err
	}
	line, err := json.Marshal(NewCaseRecord(runID, result))
	if err != nil {
		return fmt.Errorf("failed to encode case %s: %w", result.Case, err)
	}
	return s.logger.append(filepath.Join(dir, JSONLinesFileName), string(line)+"\n")
}

// Complete is a no-op for JSONLinesSink
func (s *JSONLinesSink) Complete(runID string) error {
	return nil
}

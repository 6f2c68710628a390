package runner

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum-optimism/infra/op-stepper/types"
	"github.com/ethereum/go-ethereum/log"
)

// ProgressIndicator receives run progress from the coordinator. Calls may come
// from several workers at once.
type ProgressIndicator interface {
	StartRun(runID string, totalCases int)
	StartCase(caseKey, workerID string)
	CompleteCase(caseKey string, status types.Status)
	CompleteRun(runID string)
}

// noOpProgressIndicator provides a no-op implementation of ProgressIndicator
type noOpProgressIndicator struct{}

// NewNoOpProgressIndicator creates a progress indicator that does nothing
func NewNoOpProgressIndicator() ProgressIndicator {
	return &noOpProgressIndicator{}
}

func (n *noOpProgressIndicator) StartRun(runID string, totalCases int)             {}
func (n *noOpProgressIndicator) StartCase(caseKey, workerID string)                {}
func (n *noOpProgressIndicator) CompleteCase(caseKey string, status types.Status) {}
func (n *noOpProgressIndicator) CompleteRun(runID string)                          {}

// ConsoleProgressIndicator logs periodic progress of a run
type ConsoleProgressIndicator struct {
	logger log.Logger
	ticker *time.Ticker
	stopCh chan struct{}
	once   sync.Once
	mu     sync.RWMutex

	runID          string
	completedCases int
	totalCases     int
	runStartTime   time.Time

	// case key -> start time
	runningCases map[string]time.Time
}

// NewConsoleProgressIndicator creates a progress indicator that logs an update every interval
func NewConsoleProgressIndicator(logger log.Logger, updateInterval time.Duration) *ConsoleProgressIndicator {
	if updateInterval == 0 {
		updateInterval = 30 * time.Second
	}

	indicator := &ConsoleProgressIndicator{
		logger:       logger,
		ticker:       time.NewTicker(updateInterval),
		stopCh:       make(chan struct{}),
		runningCases: make(map[string]time.Time),
	}

	go indicator.progressReporter()

	return indicator
}

func (c *ConsoleProgressIndicator) StartRun(runID string, totalCases int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.runID = runID
	c.totalCases = totalCases
	c.completedCases = 0
	c.runStartTime = time.Now()
	c.runningCases = make(map[string]time.Time)

	c.logger.Info("Starting run", "runID", runID, "totalCases", totalCases)
}

func (c *ConsoleProgressIndicator) StartCase(caseKey, workerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.runningCases[caseKey] = time.Now()
	c.logger.Debug("Case started", "case", caseKey, "worker", workerID, "runningCases", len(c.runningCases))
}

func (c *ConsoleProgressIndicator) CompleteCase(caseKey string, status types.Status) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.runningCases, caseKey)
	c.completedCases++

	c.logger.Debug("Case completed", "case", caseKey, "status", status, "completed", c.completedCases, "total", c.totalCases)
}

func (c *ConsoleProgressIndicator) CompleteRun(runID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	duration := time.Since(c.runStartTime).Truncate(time.Millisecond)
	c.logger.Info("Completed run", "runID", runID, "totalCases", c.totalCases, "completed", c.completedCases, "duration", duration)
	c.runningCases = make(map[string]time.Time)
}

// Completed returns how many cases finished so far
func (c *ConsoleProgressIndicator) Completed() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.completedCases
}

func (c *ConsoleProgressIndicator) progressReporter() {
	for {
		select {
		case <-c.ticker.C:
			c.reportProgress()
		case <-c.stopCh:
			return
		}
	}
}

func (c *ConsoleProgressIndicator) reportProgress() {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.runID == "" {
		return
	}

	var percentComplete float64
	if c.totalCases > 0 {
		percentComplete = float64(c.completedCases) * 100.0 / float64(c.totalCases)
	}

	c.logger.Info("Progress update",
		"runID", c.runID,
		"completed", c.completedCases,
		"total", c.totalCases,
		"percent", fmt.Sprintf("%.1f%%", percentComplete),
		"numRunning", len(c.runningCases),
		"longestRunning", formatRunningCases(c.runningCases, 3),
	)
}

// Stop stops the periodic updates
func (c *ConsoleProgressIndicator) Stop() {
	c.once.Do(func() {
		c.ticker.Stop()
		close(c.stopCh)
	})
}

// formatRunningCases lists the longest-running cases first, at most maxShow of them
func formatRunningCases(running map[string]time.Time, maxShow int) string {
	if len(running) == 0 {
		return ""
	}

	type runningCase struct {
		key      string
		duration time.Duration
	}

	now := time.Now()
	cases := make([]runningCase, 0, len(running))
	for key, start := range running {
		cases = append(cases, runningCase{key: key, duration: now.Sub(start)})
	}
	sort.Slice(cases, func(i, j int) bool {
		if cases[i].duration == cases[j].duration {
			return cases[i].key < cases[j].key
		}
		return cases[i].duration > cases[j].duration
	})

	var parts []string
	for i, rc := range cases {
		if i >= maxShow {
			break
		}
		parts = append(parts, fmt.Sprintf("%s (%v)", rc.key, rc.duration.Truncate(time.Second)))
	}
	if len(cases) > maxShow {
		parts = append(parts, fmt.Sprintf("+%d more", len(cases)-maxShow))
	}
	return strings.Join(parts, ", ")
}

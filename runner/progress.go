package runner

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum-optimism/infra/op-testengine/types"
	"github.com/ethereum/go-ethereum/log"
)

// ProgressIndicator interface for UI updates
type ProgressIndicator interface {
	StartIteration(iteration int, totalTests int)
	StartCase(name string)
	CompleteCase(name string, outcome types.Outcome)
	CompleteIteration(iteration int)
	Stop()
}

// noOpProgressIndicator provides a no-op implementation of ProgressIndicator
type noOpProgressIndicator struct{}

// NewNoOpProgressIndicator creates a progress indicator that does nothing
func NewNoOpProgressIndicator() ProgressIndicator {
	return &noOpProgressIndicator{}
}

func (n *noOpProgressIndicator) StartIteration(iteration int, totalTests int)    {}
func (n *noOpProgressIndicator) StartCase(name string)                           {}
func (n *noOpProgressIndicator) CompleteCase(name string, outcome types.Outcome) {}
func (n *noOpProgressIndicator) CompleteIteration(iteration int)                 {}
func (n *noOpProgressIndicator) Stop()                                           {}

// consoleProgressIndicator periodically logs how far the run got
type consoleProgressIndicator struct {
	logger log.Logger
	ticker *time.Ticker
	stopCh chan struct{}
	once   sync.Once
	mu     sync.RWMutex

	iteration          int
	completedCases     int
	failedCases        int
	totalTests         int
	iterationStartTime time.Time

	// Track currently running cases
	runningCases map[string]time.Time // case name -> start time
}

// NewConsoleProgressIndicator creates a progress indicator that shows updates in the console
func NewConsoleProgressIndicator(logger log.Logger, updateInterval time.Duration) ProgressIndicator {
	if updateInterval == 0 {
		updateInterval = 30 * time.Second // Default to 30 seconds
	}

	indicator := &consoleProgressIndicator{
		logger:       logger,
		ticker:       time.NewTicker(updateInterval),
		stopCh:       make(chan struct{}),
		runningCases: make(map[string]time.Time),
	}

	go indicator.progressReporter()

	return indicator
}

func (c *consoleProgressIndicator) StartIteration(iteration int, totalTests int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.iteration = iteration
	c.totalTests = totalTests
	c.completedCases = 0
	c.failedCases = 0
	c.iterationStartTime = time.Now()
	c.runningCases = make(map[string]time.Time)

	c.logger.Info("Starting iteration", "iteration", iteration, "totalTests", totalTests)
}

func (c *consoleProgressIndicator) StartCase(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.runningCases[name] = time.Now()
}

func (c *consoleProgressIndicator) CompleteCase(name string, outcome types.Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.runningCases, name)
	c.completedCases++
	if outcome == types.OutcomeFailed {
		c.failedCases++
	}
	c.logger.Debug("Case completed", "case", name, "outcome", outcome, "completed", c.completedCases, "running", len(c.runningCases))
}

func (c *consoleProgressIndicator) CompleteIteration(iteration int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	duration := time.Since(c.iterationStartTime).Truncate(time.Millisecond)
	c.logger.Info("Completed iteration", "iteration", iteration, "cases", c.completedCases, "failed", c.failedCases, "duration", duration)
	c.runningCases = make(map[string]time.Time)
}

func (c *consoleProgressIndicator) progressReporter() {
	for {
		select {
		case <-c.ticker.C:
			c.reportProgress()
		case <-c.stopCh:
			return
		}
	}
}

func (c *consoleProgressIndicator) reportProgress() {
	c.mu.RLock()
	defer c.mu.RUnlock()

	c.logger.Info("Progress update",
		"iteration", c.iteration,
		"tests", c.totalTests,
		"completedCases", c.completedCases,
		"failedCases", c.failedCases,
		"numRunning", len(c.runningCases),
		"longestRunning", formatRunningCases(c.runningCases, 3),
	)
}

// Stop stops the progress indicator
func (c *consoleProgressIndicator) Stop() {
	c.once.Do(func() {
		c.ticker.Stop()
		close(c.stopCh)
	})
}

// formatRunningCases lists the longest running cases first, showing at most maxShow.
func formatRunningCases(running map[string]time.Time, maxShow int) string {
	if len(running) == 0 {
		return ""
	}

	type runningCase struct {
		name     string
		duration time.Duration
	}

	var list []runningCase
	now := time.Now()
	for name, start := range running {
		list = append(list, runningCase{name: name, duration: now.Sub(start)})
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].duration == list[j].duration {
			return list[i].name < list[j].name
		}
		return list[i].duration > list[j].duration
	})

	var parts []string
	for i, rc := range list {
		if i >= maxShow {
			break
		}
		parts = append(parts, fmt.Sprintf("%s (%v)", rc.name, rc.duration.Truncate(time.Second)))
	}
	if len(list) > maxShow {
		parts = append(parts, fmt.Sprintf("+%d more", len(list)-maxShow))
	}
	return strings.Join(parts, ", ")
}

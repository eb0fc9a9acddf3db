package runner

import (
	"testing"
	"time"

	"github.com/ethereum-optimism/infra/op-testengine/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
)

func TestFormatRunningCases(t *testing.T) {
	now := time.Now()
	running := map[string]time.Time{
		"mod/a":    now.Add(-3 * time.Second),
		"mod/b(1)": now.Add(-10 * time.Second),
		"mod/c":    now.Add(-1 * time.Second),
		"mod/d":    now.Add(-2 * time.Second),
	}

	got := formatRunningCases(running, 2)
	assert.Contains(t, got, "mod/b(1) (10s)")
	assert.Contains(t, got, "mod/a (3s)")
	assert.Contains(t, got, "+2 more")
	assert.NotContains(t, got, "mod/c")

	assert.Empty(t, formatRunningCases(nil, 3))
}

func TestConsoleProgressIndicator(t *testing.T) {
	p := NewConsoleProgressIndicator(log.NewLogger(log.DiscardHandler()), time.Millisecond)
	c := p.(*consoleProgressIndicator)

	p.StartIteration(0, 2)
	p.StartCase("mod/a")
	p.StartCase("mod/b")
	p.CompleteCase("mod/a", types.OutcomeFailed)

	c.mu.RLock()
	assert.Equal(t, 1, c.completedCases)
	assert.Equal(t, 1, c.failedCases)
	assert.Len(t, c.runningCases, 1)
	c.mu.RUnlock()

	p.CompleteIteration(0)
	p.Stop()
	p.Stop()
}

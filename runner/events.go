package runner

import (
	"sync"
	"time"

	"github.com/ethereum-optimism/infra/op-testengine/types"
)

// eventBus delivers events to the configured handler one at a time, in the
// order they were posted.
type eventBus struct {
	mu           sync.Mutex
	handler      types.EventHandler
	expectations bool
}

func newEventBus(handler types.EventHandler, expectations bool) *eventBus {
	return &eventBus{handler: handler, expectations: expectations}
}

func (b *eventBus) post(ev *types.Event, ectx *types.EventContext) {
	if b.handler == nil {
		return
	}
	if ev.Kind == types.EventExpectationChecked && !b.expectations {
		return
	}
	if ev.Instant.IsZero() {
		ev.Instant = time.Now()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handler(ev, ectx)
}

// handle exposes the bus as a handler so nested runs post through it.
func (b *eventBus) handle(ev *types.Event, ectx *types.EventContext) {
	b.post(ev, ectx)
}

// caseRecorder turns what a body reports into events.
type caseRecorder struct {
	it     *iterationRun
	result *TestResult
}

func (r *caseRecorder) IssueRecorded(t *types.T, issue *types.Issue) {
	r.it.issueRecorded(t.Test(), t.Case(), issue)
}

func (r *caseRecorder) MessageLogged(t *types.T, message string) {
	ev := r.it.event(types.EventMessageLogged, t.Test(), t.Case())
	ev.Message = message
	r.it.post(ev, t.Test(), t.Case())
}

func (r *caseRecorder) ExpectationChecked(t *types.T, expectation types.Expectation) {
	ev := r.it.event(types.EventExpectationChecked, t.Test(), t.Case())
	exp := expectation
	ev.Expectation = &exp
	r.it.post(ev, t.Test(), t.Case())
}

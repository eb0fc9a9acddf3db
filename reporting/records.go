package reporting

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ethereum-optimism/infra/op-testengine/abi"
	"github.com/ethereum-optimism/infra/op-testengine/plan"
	"github.com/ethereum-optimism/infra/op-testengine/types"
	"github.com/ethereum/go-ethereum/log"
)

const recordsFile = "records.jsonl"

// RecordSink writes ABI-encoded test and event records of one run to
// <dir>/<runID>/records.jsonl, one record per line.
type RecordSink struct {
	log  log.Logger
	path string

	mu   sync.Mutex
	file *os.File
	w    *bufio.Writer
	errs []error
}

// NewRecordSink creates the run directory and opens the records file.
func NewRecordSink(dir, runID string, logger log.Logger) (*RecordSink, error) {
	if runID == "" {
		return nil, errors.New("run ID is required")
	}
	runDir := filepath.Join(dir, runID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create run directory %s: %w", runDir, err)
	}
	path := filepath.Join(runDir, recordsFile)
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create records file: %w", err)
	}
	return &RecordSink{
		log:  logger,
		path: path,
		file: f,
		w:    bufio.NewWriter(f),
	}, nil
}

// Path returns the location of the records file.
func (s *RecordSink) Path() string {
	return s.path
}

// WriteTests records every step of p in plan order.
func (s *RecordSink) WriteTests(p *plan.Plan) error {
	for _, step := range p.Steps {
		b, err := abi.EncodeTest(step.Test)
		if err != nil {
			return fmt.Errorf("encode test %s: %w", step.Test.ID, err)
		}
		s.write(b)
	}
	return nil
}

// HandleEvent is a types.EventHandler.
func (s *RecordSink) HandleEvent(ev *types.Event, ectx *types.EventContext) {
	b, err := abi.EncodeEvent(ev, ectx)
	if err != nil {
		s.log.Error("Failed to encode event", "event", ev.Kind, "err", err)
		return
	}
	s.write(b)
}

func (s *RecordSink) write(b []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.w == nil {
		return
	}
	if _, err := s.w.Write(b); err != nil {
		s.errs = append(s.errs, err)
		return
	}
	if err := s.w.WriteByte('\n'); err != nil {
		s.errs = append(s.errs, err)
	}
}

// Close flushes and closes the file. Write errors seen since the sink was
// opened are returned here.
func (s *RecordSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.w == nil {
		return nil
	}
	errs := s.errs
	errs = append(errs, s.w.Flush(), s.file.Close())
	s.w = nil
	return errors.Join(errs...)
}

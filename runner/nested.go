package runner

import (
	"github.com/ethereum-optimism/infra/op-testengine/plan"
	"github.com/ethereum-optimism/infra/op-testengine/types"
)

// RunNested runs p from inside the body owning t. The nested run reads the
// enclosing case's context, logger and configuration explicitly: it is
// cancelled with the case, reports its events through the enclosing run's
// handler unless p configures its own, and never runs more parallel than
// the enclosing run allows. A failing nested run records an issue on t.
func RunNested(t *types.T, p *plan.Plan) (*RunResult, error) {
	conf := p.Configuration
	if outer := t.Configuration(); outer != nil {
		if conf.EventHandler == nil {
			conf.EventHandler = outer.EventHandler
		}
		if outer.Serial() {
			conf.Parallel = false
		}
		if outer.MaxTimeLimit > 0 && (conf.MaxTimeLimit == 0 || conf.MaxTimeLimit > outer.MaxTimeLimit) {
			conf.MaxTimeLimit = outer.MaxTimeLimit
		}
	}
	nested := *p
	nested.Configuration = conf

	r, err := New(&nested, Config{Log: t.Logger().New("nested", true)})
	if err != nil {
		return nil, err
	}
	r.nested = true

	res, err := r.Run(t.Context())
	if err != nil {
		return nil, err
	}
	if !res.Success() {
		t.Errorf("nested run %s failed: %d of %d cases failed", r.RunID(), res.Stats.Failed, res.Stats.Total)
	}
	return res, nil
}

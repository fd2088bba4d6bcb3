package cli

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/leonletto/lockrun/internal/config"
	"github.com/leonletto/lockrun/internal/guard"
	"github.com/leonletto/lockrun/internal/history"
	"github.com/leonletto/lockrun/internal/metrics"
	"github.com/leonletto/lockrun/internal/procs"
)

// Session holds the objects every command builds from the resolved config.
type Session struct {
	Config  *config.Config
	Log     zerolog.Logger
	Guard   *guard.Guard
	Metrics *metrics.Metrics
}

// NewSession builds the guard and metrics described by cfg. Metrics are
// only collected when a textfile is configured.
func NewSession(cfg *config.Config, log zerolog.Logger) (*Session, error) {
	oracle, err := procs.New(cfg.Liveness)
	if err != nil {
		return nil, err
	}

	s := &Session{Config: cfg, Log: log}
	if cfg.MetricsTextfile != "" {
		s.Metrics = metrics.New()
	}

	g, err := guard.New(
		guard.WithDir(cfg.LockDir),
		guard.WithStrategy(guard.Strategy(cfg.Strategy)),
		guard.WithOracle(oracle),
		guard.WithLogger(log),
		guard.WithHooks(guard.Hooks{OnStale: func(identity, _ string, _ int) {
			s.Metrics.RecordStaleRecovery(identity)
		}}),
	)
	if err != nil {
		return nil, err
	}
	s.Guard = g
	return s, nil
}

// errHistoryDisabled is returned by OpenHistory when history is off.
var errHistoryDisabled = errors.New("run history is disabled (history: false)")

// OpenHistory opens the run ledger.
func (s *Session) OpenHistory() (*history.Store, error) {
	if !s.Config.History {
		return nil, errHistoryDisabled
	}
	store, err := history.Open(s.Config.HistoryDB)
	if err != nil {
		return nil, fmt.Errorf("open history %s: %w", s.Config.HistoryDB, err)
	}
	return store, nil
}

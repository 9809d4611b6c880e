package engine

import (
	"github.com/rs/zerolog/log"

	"github.com/MatthiasCiers/Agent-Based-Simulator/internal/audit"
	"github.com/MatthiasCiers/Agent-Based-Simulator/internal/clearing"
	"github.com/MatthiasCiers/Agent-Based-Simulator/internal/institution"
	"github.com/MatthiasCiers/Agent-Based-Simulator/internal/ledger"
	"github.com/MatthiasCiers/Agent-Based-Simulator/internal/matching"
	"github.com/MatthiasCiers/Agent-Based-Simulator/internal/positioning"
	"github.com/MatthiasCiers/Agent-Based-Simulator/internal/settlement"
	"github.com/MatthiasCiers/Agent-Based-Simulator/internal/store"
	"github.com/MatthiasCiers/Agent-Based-Simulator/internal/validation"
)

// Config is the construction-time configuration surface. No runtime
// reconfiguration is supported.
type Config struct {
	Ticks               int
	RiskFactor          float64 // 0 means clearing.DefaultRiskFactor
	AllowPartialDefault bool
	Shuffle             bool  // randomize per-tick stage order
	Seed                int64 // seed for the shuffled scheduler
}

// Engine owns the shared pipeline state and drives the stages tick by tick.
// All mutable state lives here and is reached only through stage operations;
// there are no ambient globals.
type Engine struct {
	config    Config
	store     *store.Store
	ledger    *ledger.Ledger
	registry  *institution.Registry
	sink      *audit.Sink
	scheduler Scheduler
	stages    []Stage

	clearingStage   *clearing.Service
	settlementStage *settlement.Service

	currentTick int
}

func New(config Config) *Engine {
	st := store.NewStore()
	lg := ledger.NewLedger()
	registry := institution.NewRegistry()
	sink := audit.NewSink()

	clearingStage := clearing.NewService(st, sink, config.RiskFactor)
	settlementStage := settlement.NewService(st, lg, registry, sink)

	var scheduler Scheduler = SequentialScheduler{}
	if config.Shuffle {
		scheduler = NewShuffledScheduler(config.Seed)
	}

	e := &Engine{
		config:          config,
		store:           st,
		ledger:          lg,
		registry:        registry,
		sink:            sink,
		scheduler:       scheduler,
		clearingStage:   clearingStage,
		settlementStage: settlementStage,
	}
	e.stages = []Stage{
		validation.NewService(st, registry, sink),
		matching.NewService(st, sink),
		clearingStage,
		positioning.NewService(st, sink),
		settlementStage,
	}
	return e
}

// AddStage registers an external steppable participant, typically a workload
// agent emitting instructions or cancellations. It joins the per-tick
// scheduling alongside the core stages.
func (e *Engine) AddStage(stage Stage) {
	e.stages = append(e.stages, stage)
}

// Store exposes the instruction store for submission and snapshots.
func (e *Engine) Store() *store.Store { return e.store }

// Ledger exposes the account ledger.
func (e *Engine) Ledger() *ledger.Ledger { return e.ledger }

// Registry exposes the institution registry.
func (e *Engine) Registry() *institution.Registry { return e.registry }

// Audit exposes the audit sink.
func (e *Engine) Audit() *audit.Sink { return e.sink }

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.config }

// CurrentTick returns the number of completed ticks.
func (e *Engine) CurrentTick() int { return e.currentTick }

// Tick advances the simulation by one discrete step, invoking every stage
// once in scheduler order.
func (e *Engine) Tick() {
	e.currentTick++
	logger := log.With().
		Str("service", "engine").
		Int("tick", e.currentTick).
		Logger()
	logger.Debug().Msg("tick starting")

	for _, stage := range e.scheduler.Order(e.currentTick, e.stages) {
		stage.Step(e.currentTick)
	}

	logger.Debug().Msg("tick completed")
}

// Run advances the simulation by the configured number of ticks.
func (e *Engine) Run() {
	for i := 0; i < e.config.Ticks; i++ {
		e.Tick()
	}
	log.Info().
		Str("service", "engine").
		Int("ticks", e.currentTick).
		Float64("settlement_efficiency", e.SettlementEfficiency()).
		Msg("run completed")
}

// SettlementEfficiency returns the percentage of the total cleared net
// amount that actually settled.
func (e *Engine) SettlementEfficiency() float64 {
	possible := e.clearingStage.TotalPossibleNet()
	if possible <= 0 {
		return 0
	}
	return e.settlementStage.TotalSettledNet() / possible * 100
}

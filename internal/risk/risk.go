// Package risk implements a shared gate over active positions for a risk
// group, running user-supplied validators in order and persisting the
// active-position map. It generalizes an ActivePositions-bookkeeping,
// check/add/remove-signal lifecycle into a pluggable validator-list
// contract, wired to internal/persistence for crash-safe storage instead of
// an in-memory-only map.
package risk

import (
	"sync"
	"time"

	"github.com/lumenquant/coreengine/internal/eventbus"
	"github.com/lumenquant/coreengine/internal/logger"
	"github.com/lumenquant/coreengine/internal/metrics"
	"github.com/lumenquant/coreengine/internal/persistence"
	"github.com/lumenquant/coreengine/internal/signal"
	"github.com/shopspring/decimal"
)

// ActivePosition records when a (strategy,symbol) pair opened a position,
// for validators that care about exposure duration or count.
type ActivePosition struct {
	StrategyName string    `json:"strategy_name"`
	Symbol       string    `json:"symbol"`
	OpenedAt     time.Time `json:"opened_at"`
}

type positionKey struct {
	StrategyName string
	Symbol       string
}

// ValidatorInput is the total context passed to every user validator.
type ValidatorInput struct {
	Proposal            signal.Proposal
	Symbol              string
	StrategyName        string
	ExchangeName        string
	CurrentPrice        decimal.Decimal
	Timestamp           time.Time
	ActivePositionCount int
	ActivePositions     []ActivePosition
}

// Verdict is what a user validator returns: the zero value (Allow) to
// allow, or a rejection with an optional human-readable note.
type Verdict struct {
	Rejected bool
	Note     string
}

// Allow is the zero-value "no objection" verdict.
var Allow = Verdict{}

// Reject builds a rejecting verdict with the given note.
func Reject(note string) Verdict {
	return Verdict{Rejected: true, Note: note}
}

// Validator is a single user-supplied risk rule; it must be total (never
// panic) and side-effect-free beyond its own bookkeeping.
type Validator func(ValidatorInput) Verdict

// CheckResult is the risk gate's total-function verdict.
type CheckResult struct {
	Allowed bool
	Reason  string
}

// Manager is the risk gate for one risk_name group, serializing
// check/add/remove-signal access to a shared risk slot.
type Manager struct {
	name       string
	validators []Validator
	store      *persistence.Store
	bus        *eventbus.Bus

	mu        sync.Mutex
	positions map[positionKey]ActivePosition

	log *logger.Logger
}

// NewManager creates a risk manager for riskName with the given validators
// in declaration order. An empty riskName with no validators is an
// always-allow no-op.
func NewManager(riskName string, validators []Validator, store *persistence.Store, bus *eventbus.Bus) *Manager {
	return &Manager{
		name:       riskName,
		validators: validators,
		store:      store,
		bus:        bus,
		positions:  make(map[positionKey]ActivePosition),
		log:        logger.Component("risk").WithField("risk_name", riskName),
	}
}

// riskRecord is the on-disk shape of one active position entry.
type riskRecord struct {
	StrategyName string         `json:"strategy_name"`
	Symbol       string         `json:"symbol"`
	Position     ActivePosition `json:"position"`
}

// WaitForInit hydrates the in-memory position map from the Risk slot. It
// is idempotent: every call re-reads the slot and merges its entries, so a
// second call leaves the map as the first call did.
func (m *Manager) WaitForInit() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.positions == nil {
		m.positions = make(map[positionKey]ActivePosition)
	}

	var raw []riskRecord
	found, err := m.store.ReadSlot(persistence.SubdirRisk, m.name, &raw)
	if err != nil && err != persistence.ErrCorrupt {
		return err
	}
	if !found {
		return nil
	}

	for _, r := range raw {
		m.positions[positionKey{StrategyName: r.StrategyName, Symbol: r.Symbol}] = r.Position
	}
	return nil
}

func (m *Manager) persistLocked() error {
	records := make([]riskRecord, 0, len(m.positions))
	for k, v := range m.positions {
		records = append(records, riskRecord{StrategyName: k.StrategyName, Symbol: k.Symbol, Position: v})
	}
	return m.store.WriteSlot(persistence.SubdirRisk, m.name, records)
}

// CheckSignal runs every validator in order against input; the first
// rejection short-circuits the rest. Emits risk_rejected on rejection.
func (m *Manager) CheckSignal(input ValidatorInput) CheckResult {
	m.mu.Lock()
	input.ActivePositionCount = len(m.positions)
	positions := make([]ActivePosition, 0, len(m.positions))
	for _, p := range m.positions {
		positions = append(positions, p)
	}
	input.ActivePositions = positions
	m.mu.Unlock()

	for _, v := range m.validators {
		verdict := m.safeRun(v, input)
		if verdict.Rejected {
			m.emitRejected(input, verdict.Note)
			return CheckResult{Allowed: false, Reason: verdict.Note}
		}
	}
	return CheckResult{Allowed: true}
}

// safeRun converts a panicking validator into a rejection, since user code
// is untrusted and must never take down a tick.
func (m *Manager) safeRun(v Validator, input ValidatorInput) (verdict Verdict) {
	defer func() {
		if r := recover(); r != nil {
			verdict = Reject("validator panicked")
			m.log.Error().Interface("panic", r).Msg("risk validator panicked; treating as rejection")
		}
	}()
	return v(input)
}

func (m *Manager) emitRejected(input ValidatorInput, note string) {
	metrics.SignalsRejected.WithLabelValues("risk", note).Inc()
	if m.bus == nil {
		return
	}
	m.bus.Publish(eventbus.Event{
		Kind:         eventbus.KindRiskRejected,
		StrategyName: input.StrategyName,
		ExchangeName: input.ExchangeName,
		Symbol:       input.Symbol,
		Payload:      note,
	})
}

// AddSignal inserts and persists an active position for (strategyName, symbol).
func (m *Manager) AddSignal(strategyName, symbol string, openedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.positions[positionKey{StrategyName: strategyName, Symbol: symbol}] = ActivePosition{
		StrategyName: strategyName,
		Symbol:       symbol,
		OpenedAt:     openedAt,
	}
	return m.persistLocked()
}

// RemoveSignal removes and persists the active position for (strategyName, symbol).
func (m *Manager) RemoveSignal(strategyName, symbol string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.positions, positionKey{StrategyName: strategyName, Symbol: symbol})
	return m.persistLocked()
}

// ActivePositionCount reports the current number of active positions in
// this risk group.
func (m *Manager) ActivePositionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.positions)
}

// NoopValidator always allows. RegisterRisk does not add it on its own; a
// caller passes it explicitly when it wants one.
func NoopValidator(ValidatorInput) Verdict { return Allow }

package engine

import "errors"

// The seven error kinds of the engine's error taxonomy. No code path in
// this module wraps or returns them: lanes return the underlying error,
// and eventbus.KindError events carry its message as a plain string.
// Validation and risk rejections are ordinary control flow inside
// strategy.Machine (they resolve to an Idle tick, not an error return).
var (
	ErrValidation               = errors.New("engine: signal proposal failed validation")
	ErrRiskRejection             = errors.New("engine: signal proposal rejected by risk gate")
	ErrExchangeTransient         = errors.New("engine: transient exchange error")
	ErrExchangeFatal             = errors.New("engine: fatal exchange error")
	ErrSignalGeneratorTimeout    = errors.New("engine: signal generator exceeded its deadline")
	ErrPersistenceWrite          = errors.New("engine: failed to persist state")
	ErrPersistenceCorruption     = errors.New("engine: persisted state file was corrupt and was discarded")
)

// Registration-time errors: asking the engine to run a lane that was
// never registered.
var (
	ErrUnknownExchange = errors.New("engine: unknown exchange")
	ErrUnknownStrategy = errors.New("engine: unknown strategy")
	ErrUnknownFrame    = errors.New("engine: unknown frame")
	ErrUnknownRisk     = errors.New("engine: unknown risk group")
)

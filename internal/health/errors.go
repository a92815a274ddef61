package health

import "errors"

var (
	// ErrCheckTimeout is recorded on a probe that did not finish before the evaluation deadline.
	ErrCheckTimeout = errors.New("health: check timeout")

	// ErrCheckPanic is recorded on a probe that panicked.
	ErrCheckPanic = errors.New("health: check panicked")

	// ErrDraining matches the failure of a closed ShutdownGate.
	ErrDraining = errors.New("health: draining")

	// ErrNilEvaluator is returned when an evaluator is required but missing.
	ErrNilEvaluator = errors.New("health: nil evaluator")
)

package probeserver

import "errors"

var (
	// ErrAlreadyStarted is returned by Start while a previous run has not been stopped.
	ErrAlreadyStarted = errors.New("probeserver: already started")

	// ErrBind marks failures to open or bind the listening socket.
	ErrBind = errors.New("probeserver: bind failed")

	// ErrInvalidConfig marks configuration rejected by New.
	ErrInvalidConfig = errors.New("probeserver: invalid config")

	// ErrEvaluation marks evaluator failures; they are answered with 503.
	ErrEvaluation = errors.New("probeserver: evaluation failed")

	// ErrUnexpectedHandling marks any other failure while handling one connection; answered with 500 when still possible.
	ErrUnexpectedHandling = errors.New("probeserver: unexpected handling failure")
)

// Package probeserver serves a single health probe endpoint.
//
// The server owns one listening socket bound to the configured
// host/port and handles connections strictly one at a time on a dedicated
// goroutine: read the request, ask the [health.Evaluator] for a verdict,
// write a plain-text status keyword, close the connection. A slow
// evaluation delays the next probe.
//
// Start binds synchronously so bind failures reach the caller. Stop raises
// the stop signal, waits for the loop to finish its current connection and
// release the socket, and only then returns.
package probeserver

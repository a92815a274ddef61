// Package health evaluates the aggregate health of the process.
//
// A [Probe] is a single check: nil means OK, an error is the failure reason.
// Probes compose with [All] (AND), [Any] (OR) and [Fixed] (static), and
// [CheckFunc] adapts a plain function.
//
// An [Evaluator] turns probes into a [Result] carrying one of three
// statuses. [Aggregator] runs named probes in parallel under a deadline and
// reports the worst status; probes registered as optional can only degrade
// the result, never fail it. [Throttle] bounds how often an evaluator
// actually runs and answers from the last result in between.
//
// [ShutdownGate] flips readiness during drain so load balancers stop
// routing traffic before the listener goes away.
package health

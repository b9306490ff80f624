// Package errkind defines the aggregator's stable error taxonomy as sentinel
// values so callers compare with errors.Is rather than matching strings.
package errkind

import "errors"

var (
	// ErrConfigLoad indicates the sources YAML is missing or unparseable.
	// Callers fall back to a minimal embedded source list and log once at warn.
	ErrConfigLoad = errors.New("config load error")

	// ErrTransport covers DNS, TCP, TLS, timeout and protocol failures. It is
	// retryable up to the Fetcher's configured attempt count.
	ErrTransport = errors.New("transport error")

	// ErrHTTP covers a non-2xx response. Not retried at the Fetcher layer.
	ErrHTTP = errors.New("http error")

	// ErrCircuitOpen is surfaced when a call is short-circuited at admission.
	// Never retried within the same call.
	ErrCircuitOpen = errors.New("circuit open")

	// ErrParse indicates ConfigurationProcessor silently rejected a line.
	ErrParse = errors.New("parse error")

	// ErrPersistence indicates an EventStore or JobStore save failure.
	// Counted, best-effort, never aborts the run.
	ErrPersistence = errors.New("persistence error")

	// ErrCancellationRequested is observed cooperatively at checkpoints and is
	// terminal for a job.
	ErrCancellationRequested = errors.New("cancellation requested")
)

package models

import "errors"

// Probe and lookup error kinds. Probes and the advisory client wrap these
// with context via fmt.Errorf("...: %w", ...); callers match with errors.Is
// so "nothing wrong", "could not check" and "check is broken" stay distinct.
var (
	// ErrProbeUnavailable means the thing being checked is not installed or
	// reachable. Usually this becomes a Finding rather than a silent skip.
	ErrProbeUnavailable = errors.New("probe target unavailable")

	// ErrProbeTimeout means a remote command exceeded its deadline.
	ErrProbeTimeout = errors.New("remote command timed out")

	// ErrProbeTransport means the remote command channel itself failed.
	ErrProbeTransport = errors.New("remote command channel failed")

	// ErrRateLimited means the advisory service refused further lookups for
	// this run. Callers stop issuing calls instead of retrying.
	ErrRateLimited = errors.New("advisory service rate limited")

	// ErrNotFound means the advisory database has no entry for a component.
	// This is benign: it maps to zero vulnerabilities, not a failure.
	ErrNotFound = errors.New("not found in advisory database")

	// ErrInvalidFinding marks a malformed Finding. It is a programmer error
	// in a probe and fails loudly rather than entering the snapshot.
	ErrInvalidFinding = errors.New("invalid finding")
)

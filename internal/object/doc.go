// Package object owns the per-object lifecycle and dispatch contract.
//
// Ownership boundary:
// - Kind contract (construct from init payload, handle commands, optional alarm)
// - request envelope wire shape and two-stage decoding
// - lifecycle resolution (initialized, loaded, missing)
// - dispatch error taxonomy and persist retry policy
//
// The package takes no locks. Callers must guarantee at most one in-flight
// Dispatcher.Handle per object key; the host runtime does this.
package object

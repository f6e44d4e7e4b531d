// Package replica owns the local copy of the database file: it observes its state
// and installs downloaded content over it without ever exposing a missing or
// truncated file.
//
// All file access goes through an afero.Fs so tests can substitute an in-memory
// filesystem or inject rename contention.
package replica

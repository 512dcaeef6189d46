// Package occupancy turns per-frame track positions into entry/exit
// counts, dwell times and alerts.
//
// The package is deliberately free of goroutines. An Engine is owned by a
// single writer (the frame scheduler); readers see its results through
// State snapshots, which are safe to take from any goroutine.
//
// Coordinates are image rows: a track whose vertical centre moves from a
// value below the counting line to a value above it has entered, the
// reverse has exited. A centre exactly on the line is never a crossing.
package occupancy

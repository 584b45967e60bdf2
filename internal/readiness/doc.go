// Package readiness decides when a freshly launched broker is ready.
//
// A Detector moves through LAUNCHING, POLLING and one of READY, TIMED_OUT or
// FAILED. While polling it repeatedly runs a status probe on a fixed
// interval, watches the process for an early exit and accepts a startup
// signal from the broker log. Whenever it gives up it kills the process tree
// before returning, so a failed start never leaves an orphan behind.
package readiness

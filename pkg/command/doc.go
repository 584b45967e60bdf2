// Package command runs external processes with a bounded timeout.
//
// Two modes share one implementation. Run blocks until the process exits or
// its timeout elapses and is used for short administrative commands. Start
// returns a live Handle immediately and is used for long-running servers.
// Output is captured continuously on background goroutines so a chatty child
// never blocks on a full pipe.
//
// On Unix every child is placed in its own process group so termination
// reaches the whole tree; on Linux the child also receives SIGTERM if the
// parent dies.
package command

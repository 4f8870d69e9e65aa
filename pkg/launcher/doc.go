// Package launcher supervises the SafeSound UI server on behalf of a desktop
// user: it starts the server as a child process, waits for the health
// endpoint, opens the browser once and then waits on the child.
//
// The lifecycle is a small state machine:
//
//	INIT -> SPAWNING -> WAITING_HEALTHY -> HEALTHY -> BROWSER_OPENED -> SUPERVISING -> EXITED
//	                                    \-> TIMED_OUT -> TERMINATING -> EXITED
//
// Cancellation is explicit: WithSignals turns SIGINT/SIGTERM into a context
// cancelled with a *SignalError cause, and every blocking step checks it.
package launcher

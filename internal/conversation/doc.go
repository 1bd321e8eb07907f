// Package conversation drives a message through the backend's asynchronous
// run lifecycle.
//
// # Lifecycle
//
//	CREATED ──poll──▶ POLLING ──▶ COMPLETED ──▶ fetch
//	                     │
//	                     └──────▶ TIMEOUT (error, no fetch)
//
// Send creates the message and the run, records the run as "created", stamps
// the run id onto the message, persists it, and returns. Nothing on the send
// path waits for the run.
//
// Response is the read side. If assistant messages for the run are already
// persisted they are returned with no backend calls. Otherwise AwaitCompletion
// polls the run every WaitDelay while it is queued, in progress, or cancelling,
// giving up after MaxWait, and Fetch pulls the new assistant messages, skips
// those already stored, and persists the rest.
//
// # Run-status cache
//
// RunStatuses keeps one entry per run under "runs:{run_id}:status". Entries
// that reached "completed" or "timeout" never go back to a pending value, so a
// background task and a synchronous caller can both write without locking.
//
// # Events
//
// EventBroadcaster fans RunEvents out to subscribers of a thread whenever a run
// completes with a response or times out.
package conversation

// Package assistant is the top-level façade over one backend assistant.
//
// Service owns the Assistant entity: which threads belong to it and which one
// is active. It resolves the target thread for each message, hands the send to
// the conversation orchestrator, and dispatches the response fetch to the
// worker pool so callers get their message back before the run finishes.
//
// Thread wraps a single conversation. Threads creates new ones (optionally
// seeded with files and an opening message) and reattaches existing ones,
// validating unknown ids against the backend before caching them.
package assistant

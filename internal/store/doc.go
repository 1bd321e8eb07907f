// Package store defines the persisted entities and their data access objects.
//
// # Data Models
//
//   - Assistant: identity, instructions, tools, owned threads, active thread
//   - Thread: conversation context owned by an assistant
//   - Message: one user or assistant message, tied to a run once one exists
//   - Run: backend-owned unit of inference work, observed but never mutated here
//
// Every entity serializes through its JSON tags; that shape is what lands in
// the document store and the cache.
//
// # Data Access
//
// MessageDAO, ThreadDAO, and AssistantDAO each wrap a cachedstore.Store for
// their collection. Reads go through the cache; writes persist first and then
// refresh the cache entry.
//
// Cache keys used by MessageDAO:
//
//	messages:{id}                      single message
//	messages:run:{run_id}              every message of a run
//	messages:run:{run_id}:role:{role}  messages of a run from one role
//
// # Error Handling
//
// Errors across the module are classified by the sentinels in errors.go and
// matched with errors.Is:
//
//   - ErrNotFound: the entity does not exist locally or remotely
//   - ErrValidation: input is missing or violates a precondition
//   - ErrTimeout: a run did not finish within the wait bound
//   - ErrBackend: the conversational backend failed
//   - ErrStore: the document store rejected a write
package store

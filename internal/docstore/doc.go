// Package docstore persists schemaless documents in named collections.
//
// # Overview
//
// A document is a map of JSON-compatible values. Every stored document gets a
// store-internal identifier that is returned under the "_id" key; entity ids
// used by the rest of the system live in ordinary fields (usually "id").
//
// Three implementations share the Store interface:
//
//   - MongoStore: MongoDB via the official driver, connected lazily on first use
//   - SQLiteStore: one JSON column per document in an embedded database
//   - MemoryStore: an in-process twin for tests and throwaway deployments
//
// # Queries
//
// Find takes a Query: an equality filter (all fields must match), an optional
// projection, an ordered sort, and a limit that defaults to 20.
//
//	docs, err := s.Find(ctx, "messages", docstore.Query{
//		Filter: docstore.Filter{"run_id": runID},
//		Sort:   []docstore.SortField{{Field: "created_at", Desc: true}},
//	})
//
// Upsert follows MongoDB "$set" semantics: when nothing matches the filter, the
// inserted document is the filter's fields merged with the update.
//
// # Results
//
// Result[T] is the three-way outcome used by read paths above this package:
// nothing found, one item, or a list.
package docstore

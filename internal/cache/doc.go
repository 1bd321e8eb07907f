// Package cache provides the key-value tier in front of the document store.
//
// Stores deal in raw bytes; GetDocuments and PutDocuments add the document
// contract on top: a JSON object is one document, a JSON array is a list, and
// a missing key is a NotFound result rather than an error. Keys are namespaced
// as "{collection}:{id}" (see Key).
//
// RedisStore is the production tier. MemoryStore is a bounded TTL cache with
// LRU eviction for single-process deployments and tests.
package cache

// Package repositories persists job snapshots.
//
// Key Implementations:
//   - [JobStore] : the contract the engine and the HTTP handlers depend on
//   - [MemoryJobStore] : process-lifetime map, the default backend
//   - [SQLiteJobStore] : durable backend over the embedded migrations
//
// Every method hands out deep copies, so a reader never observes a snapshot while it is being written.
// Stores are unbounded; completed jobs are never evicted.
package repositories

// Package store defines the persistence contracts of the lifecycle pipeline.
// Every store can be rebound to a caller-owned transaction with WithTx so that
// business mutations, outbox inserts and consumer side effects commit
// together. RunInTransaction is the only place that opens and finishes
// transactions on behalf of callers.
package store

// Package mocks provides in-memory implementations of the store interfaces
// and small hand-written fakes shared by the tests of the engine, service,
// consumer and worker packages.
//
// The stores keep their rows in maps guarded by a mutex. WithTx returns the
// receiver, so writes made "inside" a transaction are visible immediately;
// tests that care about commit and rollback sequencing drive a sqlmock
// database (see NewTxDB) alongside these stores.
//
// Every store embeds Faults, which lets a test make the next call of a named
// operation fail:
//
//	tasks := mocks.NewTaskStore()
//	tasks.FailNext("Update", errors.New("boom"))
package mocks

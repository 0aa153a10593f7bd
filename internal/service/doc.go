// Package service contains the task use cases exposed by the HTTP API.
//
// Every mutating operation is one unit of work: the task row, reminder
// changes and outbox events are written in a single transaction, in-process
// consumers run inside it, and the collected events are published to the
// broker only after it commits. A rollback drops the pending events.
package service

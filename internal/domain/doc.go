// Package domain contains the entities of the task lifecycle pipeline:
// tasks, their reminders, outbox events, queued notifications and audit
// rows. It holds validation and pure calculations (recurrence, backoff) and
// has no knowledge of storage or transport.
package domain

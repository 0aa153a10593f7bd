// Package worker drains the durable work tables: the event outbox, queued
// notification deliveries and due reminders.
//
// Each worker is a Processor run by Base, which gives every item its own
// transaction. A failing item is rolled back and then marked failed in a
// fresh transaction, so one bad row never holds back the rest of a batch.
// Runner executes the workers in a fixed order, once or in a loop.
package worker

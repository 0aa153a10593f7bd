// Package reminder schedules, cancels and completes task reminders.
//
// Every state change happens inside the caller's transaction and raises the
// matching reminder.* event through an EventSink. An optional JobScheduler
// mirrors pending reminders into Dapr Jobs; its failures are logged and
// never fail the reminder operation.
package reminder

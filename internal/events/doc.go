// Package events implements the task lifecycle event pipeline: the
// CloudEvents envelope and its typed payloads, the transactional outbox
// publisher with its broker transports, the in-process dispatcher with the
// built-in consumers, and the Emitter that business operations call.
//
// An event is persisted in the caller's transaction, dispatched to
// consumers inside that same transaction, and published to the broker only
// after the caller commits. A broker outage never fails the business
// operation; the outbox row stays unpublished until a worker retries it.
package events

// Package store provides SQLite-backed persistence for escalation tickets,
// configuration entities, and the turn audit ledger.
//
// The tickets table carries a CHECK constraint mirroring the delivery
// invariant: the notification message id and the expert conversation id are
// present together or absent together, never individually.
package store

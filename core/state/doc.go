// Package state holds the bot's durable state: the admin set, the speech
// API credential pool with its rotation cursor, per-user voice overrides
// and the maintenance flag.
//
// Every mutation is applied in memory and then written through a Backend
// as one flat JSON snapshot before the call returns. When the write fails
// the in-memory change is rolled back, so memory and storage never diverge
// for longer than one call.
package state

// Package storage provides the bot's SQLite persistence layer.
//
// It holds:
//   - The tracked-match queue (matches awaiting detail resolution)
//   - The per-consumer posted ledger (delivery dedup)
//   - Consumer configuration (tags, delivery channel, name bindings)
package storage

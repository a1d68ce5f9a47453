// Package results implements the match results pipeline: lobby discovery,
// durable retry-driven match resolution, winner/opponent outcome resolution,
// and per-consumer deduplicated delivery.
//
// Flow: Discovery polls the public lobby list and tracks unseen match ids in
// storage. Worker drains due ids, fetches each match's detail exactly once
// and hands it to Fanout, which evaluates every consumer against the same
// payload. Pruner trims the dedup ledger on a schedule.
package results

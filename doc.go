// Package ledger implements a single-node, strongly-consistent ledger and
// custody engine for a banking back office. It holds account, asset-holding,
// custody-receipt, trust and digital-token state, validates and applies
// transactions against that state, and guarantees that no operation can leave
// the books inconsistent (negative balance, orphaned custody receipt,
// duplicate transaction effect).
//
// The core functionalities include:
//   - Exact Money: a currency-aware decimal amount type with no implicit
//     conversion and no floating-point drift.
//   - Entity Store: a pluggable store of all entity records, mutated only by
//     the engine inside a transaction boundary.
//   - Ledger Engine: the state machine that takes a transaction request
//     through Submitted → Validating → Committed|Rejected, staging every
//     effect and applying all of them or none.
//   - Transaction Log: an append-only, ordered record of decided
//     transactions, indexed by idempotency key and by affected entity. The
//     full entity state is replayable from it.
//   - Custody & Tokenization: safe keeping receipt issuance and redemption,
//     and one-live-token digital tokenization of asset holdings.
//
// Transport, authentication, secret loading and telemetry are deliberately
// outside this package; the gateway subpackage adapts HTTP requests to engine
// calls and an already-authenticated caller identity is passed in with each
// request.
package ledger

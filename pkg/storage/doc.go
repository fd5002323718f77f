/*
Package storage provides BoltDB-backed persistence for control-plane
metadata: user accounts, container records, the append-only container
event log, filesystem node annotations (desktop positions, trash
provenance), and beta invite tokens.

Each entity lives in its own bucket with JSON-serialized values. Node
metadata keys are "<user-id>\x00<path>" so a single cursor seek serves
every per-user and per-subtree query; the NUL separator keeps path
prefixes unambiguous. User content itself never passes through this
package; it stays inside the user's container.
*/
package storage

// Package manager owns the per-user container lifecycle: provisioning,
// start, stop, restart, and status reconciliation against the engine.
//
// Every user maps to at most one container with a deterministic name, so
// the manager is free to adopt containers it finds already created and to
// re-provision ones the engine has lost. State transitions are persisted
// before the engine call that follows them, and every transition is
// appended to the user's event log.
package manager

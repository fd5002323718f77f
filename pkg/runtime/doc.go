/*
Package runtime is the capability boundary over the container engine.

It exposes create/start/stop/inspect/remove plus two exec channels: a
unary exec that runs argv to completion (used by the virtual filesystem)
and a duplex exec stream with PTY resize (used by the terminal). The
Docker Engine API implementation is the only code in the repository that
imports the engine client; everything else depends on the Runtime
interface so tests can substitute fakes.
*/
package runtime

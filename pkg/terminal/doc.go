// Package terminal provides persistent interactive shell sessions. A
// session pairs a long-lived detached multiplexer process inside the
// user's container with an ephemeral attached exec, so the shell
// survives transport disconnects.
package terminal

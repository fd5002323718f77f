// Package containerfs implements every read and write of a user's
// filesystem by executing short self-contained programs inside the
// user's container under an unprivileged account.
//
// A VFS path is a forward-slash-rooted string where "/" denotes the
// user's home. Paths are validated before translation; whole ".."
// segments are rejected, so translation (prefixing the in-container
// base) can never escape the home directory. User-supplied text flows
// into the embedded programs as argv values or stdin, never as textual
// interpolation.
//
// Each program prints a single JSON document on stdout. Error
// discriminants in that document map onto the structured error kinds
// the HTTP layer translates to status codes.
package containerfs

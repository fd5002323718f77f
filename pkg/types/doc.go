/*
Package types defines the shared domain types: users, container records
and events, filesystem node metadata, and the derived identifiers
(container name, node id) the rest of the system depends on.
*/
package types

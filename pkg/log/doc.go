/*
Package log provides structured logging using zerolog.

A single global logger is initialized via log.Init and consumed through
component child loggers (log.WithComponent) so that every line carries a
component field plus whatever request context the caller adds (user_id,
session_id, container). Output is JSON in production and a console writer
during development.
*/
package log

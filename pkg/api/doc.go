// Package api is the HTTP edge of the control plane: the JSON API
// under /api/v1, the terminal WebSocket, and the operational endpoints
// (metrics, health, readiness).
//
// Handlers stay thin. They decode input, call a service, and hand any
// error to the shared error writer, which maps the structured error
// kinds onto status codes and a {"detail": ...} body.
package api

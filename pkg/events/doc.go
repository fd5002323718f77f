/*
Package events provides an in-process publish/subscribe broker for
control-plane events: container lifecycle transitions, registrations,
and terminal session activity.

Delivery is best effort. Subscribers get a buffered channel; a full
buffer drops the event rather than blocking the publisher. The durable
audit trail is the container event log in storage, not this broker.
*/
package events

// Package api exposes the external interfaces of the arena: participant
// registration, matchmaking, in-match actions, sanitized state queries,
// spectator predictions and the live event stream. It hosts the REST server
// and maps domain error codes onto HTTP statuses.
package api

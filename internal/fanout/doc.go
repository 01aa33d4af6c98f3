// Package fanout delivers sanitized match events to their audiences: a match
// room, the spectator room, one participant's private channel or the
// traitor-only channel. Delivery is best effort and at most once per call;
// the orchestration core never depends on a broadcast having succeeded.
package fanout

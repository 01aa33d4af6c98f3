// Package game implements the arena orchestration core: the matchmaking
// queue, the per-match phase state machine, murder and vote resolution,
// win-condition evaluation and the role-scoped projection of match state.
// Each live match runs an independent timed state machine; all mutation of a
// match goes through its phase clock.
package game

package game

import "errors"

// Failure kinds surfaced by room operations. The session handler decides
// which of these become an error event on the wire and which are dropped
// silently; keeping them distinct lets tests tell a no-op from a reported
// failure.
var (
	// ErrRoomNotFound is returned for joins referencing an unknown or expired code.
	ErrRoomNotFound = errors.New("room not found or expired")

	// ErrGameInProgress rejects joins (and redundant starts) once a race is underway.
	ErrGameInProgress = errors.New("game already in progress")

	// ErrRoomFull rejects joins and bot adds at capacity.
	ErrRoomFull = errors.New("room is full")

	// ErrNotEnoughReady rejects a start with fewer than two ready players.
	ErrNotEnoughReady = errors.New("need at least 2 ready players")

	// ErrNotHost marks host-only operations invoked by a non-host. Never
	// reported to the requester, matching the observed protocol.
	ErrNotHost = errors.New("requires host")

	// ErrBotsExhausted means all bot archetypes are already seated.
	ErrBotsExhausted = errors.New("no bot archetypes left")
)

package workadventure

import "fmt"

// RoomInitializationError reports a failed room creation attempt. The
// attempt is fatal for every caller waiting on it; a later call retries
// from scratch.
type RoomInitializationError struct {
	RoomID string
	Err    error
}

func (e *RoomInitializationError) Error() string {
	return fmt.Sprintf("room %q failed to initialize: %v", e.RoomID, e.Err)
}

func (e *RoomInitializationError) Unwrap() error { return e.Err }

// CapacityExceededError reports a join against a room already at its
// occupancy limit. Depending on room policy the participant may still have
// been admitted; callers check Admitted before treating it as a rejection.
type CapacityExceededError struct {
	RoomID   string
	Limit    int
	Admitted bool
}

func (e *CapacityExceededError) Error() string {
	if e.Admitted {
		return fmt.Sprintf("room %q over capacity (limit %d), participant admitted with warning", e.RoomID, e.Limit)
	}
	return fmt.Sprintf("room %q is full (limit %d)", e.RoomID, e.Limit)
}

// UnknownRoomError reports an operation against a room that was never
// created. It distinguishes "wait for the pending creation" from "must not
// create on demand": pure observers such as zone subscribers receive it
// instead of triggering a fresh room.
type UnknownRoomError struct {
	RoomID string
}

func (e *UnknownRoomError) Error() string {
	return fmt.Sprintf("unknown room %q", e.RoomID)
}

// MalformedMessageError rejects a single inbound event with a missing or
// invalid field. The connection stays open.
type MalformedMessageError struct {
	Field string
	Err   error
}

func (e *MalformedMessageError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("malformed message: field %q: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("malformed message: %v", e.Err)
}

func (e *MalformedMessageError) Unwrap() error { return e.Err }

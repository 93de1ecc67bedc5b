package world

import "math"

// Direction is the facing of a participant, as reported by its client.
type Direction string

const (
	DirectionUp    Direction = "up"
	DirectionDown  Direction = "down"
	DirectionLeft  Direction = "left"
	DirectionRight Direction = "right"

	defaultDirection Direction = DirectionDown
)

// ParseDirection validates a direction string received from a client.
func ParseDirection(value string) (Direction, bool) {
	switch Direction(value) {
	case DirectionUp, DirectionDown, DirectionLeft, DirectionRight:
		return Direction(value), true
	default:
		return "", false
	}
}

// Position is a point in a room's continuous coordinate space, together
// with the facing and the "still moving" hint reported by the client. The
// Moving flag is what the load-shedding policy keys on: only updates with
// Moving set may be dropped, so the final resting position always lands.
type Position struct {
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	Direction Direction `json:"direction,omitempty"`
	Moving    bool      `json:"moving,omitempty"`
}

// Distance returns the Euclidean distance between the two points.
func (p Position) Distance(other Position) float64 {
	return math.Hypot(p.X-other.X, p.Y-other.Y)
}

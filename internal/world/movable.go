package world

// Movable is anything the zone index tracks: a participant or a proximity
// group. The variant is closed — event emission switches over the two
// concrete types instead of inspecting arbitrary runtime types.
type Movable interface {
	Position() Position

	// movable seals the interface to this package's two implementations.
	movable()
}

func (*Participant) movable() {}
func (*Group) movable()       {}

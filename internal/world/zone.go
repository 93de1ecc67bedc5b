package world

// ZoneCoord identifies one zone by its integer grid coordinates, derived
// from dividing continuous position space by the configured cell size.
type ZoneCoord struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// zone is one lazily created grid cell. It tracks the movables whose
// position falls inside its bounds and the listeners currently subscribed
// to it. A zone with neither is garbage collected by the index.
type zone struct {
	coord     ZoneCoord
	things    map[Movable]struct{}
	listeners map[Transport]struct{}
}

func newZone(coord ZoneCoord) *zone {
	return &zone{
		coord:     coord,
		things:    make(map[Movable]struct{}),
		listeners: make(map[Transport]struct{}),
	}
}

func (z *zone) empty() bool {
	return len(z.things) == 0 && len(z.listeners) == 0
}

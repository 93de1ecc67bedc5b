package world

import "math"

// ZoneEventSink receives per-listener spatial deltas from the zone index.
// Callbacks fire synchronously while the owning room's lock is held; sinks
// must not call back into the room.
//
// Enter events carry the zone the movable came from, leave events the zone
// it went to (nil on first join / final departure), so subscribers can
// smooth entities crossing cell boundaries instead of popping them.
type ZoneEventSink interface {
	OnZoneEnter(m Movable, from *ZoneCoord, listener Transport)
	OnZoneMove(m Movable, listener Transport)
	OnZoneLeave(m Movable, to *ZoneCoord, listener Transport)
}

// ZoneIndex partitions a room's coordinate space into fixed-size grid
// cells and decides, for each movement, which listener must be told
// "entered", "moved within" or "left". Listeners subscribe to the 3×3
// neighborhood around a focus cell so entities near a boundary stay
// visible.
//
// The cell size is fixed at construction. It must stay large relative to
// per-update movement distance: an entity skipping an entire zone between
// two updates goes undetected by design.
type ZoneIndex struct {
	cellSize    float64
	invCellSize float64
	zones       map[ZoneCoord]*zone

	// current zone per movable; the authoritative membership record, so a
	// caller-supplied stale old position can never leave a dangling entry.
	entries map[Movable]ZoneCoord

	// focus cells per listener. A listener may hold several focuses; it is
	// attached to a zone as long as at least one focus neighborhood covers
	// that zone.
	focuses map[Transport]map[ZoneCoord]struct{}

	sink ZoneEventSink
}

// NewZoneIndex constructs an index over cells of the given edge length.
func NewZoneIndex(cellSize float64, sink ZoneEventSink) *ZoneIndex {
	if cellSize <= 0 {
		cellSize = 1
	}
	return &ZoneIndex{
		cellSize:    cellSize,
		invCellSize: 1.0 / cellSize,
		zones:       make(map[ZoneCoord]*zone),
		entries:     make(map[Movable]ZoneCoord),
		focuses:     make(map[Transport]map[ZoneCoord]struct{}),
		sink:        sink,
	}
}

func (idx *ZoneIndex) coordOf(pos Position) ZoneCoord {
	return ZoneCoord{
		X: int(math.Floor(pos.X * idx.invCellSize)),
		Y: int(math.Floor(pos.Y * idx.invCellSize)),
	}
}

func neighborhood(focus ZoneCoord) []ZoneCoord {
	cells := make([]ZoneCoord, 0, 9)
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			cells = append(cells, ZoneCoord{X: focus.X + dx, Y: focus.Y + dy})
		}
	}
	return cells
}

// AddListener subscribes the listener to the 3×3 neighborhood around the
// focus cell and returns a snapshot of every movable currently inside it.
// Adding the same listener/focus pair twice is a no-op returning a fresh
// snapshot.
func (idx *ZoneIndex) AddListener(listener Transport, focusX, focusY int) []Movable {
	focus := ZoneCoord{X: focusX, Y: focusY}

	registered := idx.focuses[listener]
	if registered == nil {
		registered = make(map[ZoneCoord]struct{})
		idx.focuses[listener] = registered
	}
	_, already := registered[focus]
	registered[focus] = struct{}{}

	var snapshot []Movable
	for _, coord := range neighborhood(focus) {
		z, ok := idx.zones[coord]
		if !ok {
			if already {
				continue
			}
			z = newZone(coord)
			idx.zones[coord] = z
		}
		if !already {
			z.listeners[listener] = struct{}{}
		}
		for thing := range z.things {
			snapshot = append(snapshot, thing)
		}
	}
	idx.collectEmpty()
	return snapshot
}

// RemoveListener drops one listener/focus subscription. Unknown pairs are
// ignored. The listener stays attached to zones still covered by another
// of its focuses.
func (idx *ZoneIndex) RemoveListener(listener Transport, focusX, focusY int) {
	focus := ZoneCoord{X: focusX, Y: focusY}
	registered, ok := idx.focuses[listener]
	if !ok {
		return
	}
	if _, ok := registered[focus]; !ok {
		return
	}
	delete(registered, focus)
	if len(registered) == 0 {
		delete(idx.focuses, listener)
	}

	for _, coord := range neighborhood(focus) {
		if idx.coveredByOtherFocus(listener, coord) {
			continue
		}
		if z, ok := idx.zones[coord]; ok {
			delete(z.listeners, listener)
			if z.empty() {
				delete(idx.zones, coord)
			}
		}
	}
}

func (idx *ZoneIndex) coveredByOtherFocus(listener Transport, coord ZoneCoord) bool {
	for focus := range idx.focuses[listener] {
		if abs(focus.X-coord.X) <= 1 && abs(focus.Y-coord.Y) <= 1 {
			return true
		}
	}
	return false
}

// Enter places a movable with no prior zone membership. Every listener of
// its initial zone receives an enter event with no origin zone.
func (idx *ZoneIndex) Enter(m Movable) {
	coord := idx.coordOf(m.Position())
	z := idx.zone(coord)
	z.things[m] = struct{}{}
	idx.entries[m] = coord
	for listener := range z.listeners {
		idx.sink.OnZoneEnter(m, nil, listener)
	}
}

// Move reconciles zone membership after a position change and emits the
// per-listener deltas. A listener subscribed to both the old and the new
// zone gets exactly one lightweight move event, never a leave/enter pair.
func (idx *ZoneIndex) Move(m Movable) {
	oldCoord, tracked := idx.entries[m]
	if !tracked {
		idx.Enter(m)
		return
	}
	newCoord := idx.coordOf(m.Position())

	if oldCoord == newCoord {
		if z, ok := idx.zones[oldCoord]; ok {
			for listener := range z.listeners {
				idx.sink.OnZoneMove(m, listener)
			}
		}
		return
	}

	oldZone := idx.zones[oldCoord]
	newZone := idx.zone(newCoord)

	delete(oldZone.things, m)
	newZone.things[m] = struct{}{}
	idx.entries[m] = newCoord

	for listener := range oldZone.listeners {
		if _, both := newZone.listeners[listener]; both {
			idx.sink.OnZoneMove(m, listener)
		} else {
			to := newCoord
			idx.sink.OnZoneLeave(m, &to, listener)
		}
	}
	for listener := range newZone.listeners {
		if _, both := oldZone.listeners[listener]; both {
			continue
		}
		from := oldCoord
		idx.sink.OnZoneEnter(m, &from, listener)
	}

	if oldZone.empty() {
		delete(idx.zones, oldCoord)
	}
}

// Leave removes a movable entirely. Listeners of its last zone receive a
// leave event with no destination zone. Unknown movables are ignored.
func (idx *ZoneIndex) Leave(m Movable) {
	coord, ok := idx.entries[m]
	if !ok {
		return
	}
	delete(idx.entries, m)
	z, ok := idx.zones[coord]
	if !ok {
		return
	}
	delete(z.things, m)
	for listener := range z.listeners {
		idx.sink.OnZoneLeave(m, nil, listener)
	}
	if z.empty() {
		delete(idx.zones, coord)
	}
}

// CurrentZone returns the zone currently holding the movable.
func (idx *ZoneIndex) CurrentZone(m Movable) (ZoneCoord, bool) {
	coord, ok := idx.entries[m]
	return coord, ok
}

func (idx *ZoneIndex) zone(coord ZoneCoord) *zone {
	z, ok := idx.zones[coord]
	if !ok {
		z = newZone(coord)
		idx.zones[coord] = z
	}
	return z
}

func (idx *ZoneIndex) collectEmpty() {
	for coord, z := range idx.zones {
		if z.empty() {
			delete(idx.zones, coord)
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

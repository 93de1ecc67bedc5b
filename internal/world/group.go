package world

// Group is a dynamically formed cluster of nearby participants sharing a
// media mesh. Its position is the arithmetic mean of its members'
// positions, recomputed on every membership or member-position change.
// Mutations happen only through the owning room's proximity engine.
type Group struct {
	id      uint32
	members []*Participant
	pos     Position
}

func newGroup(id uint32) *Group {
	return &Group{id: id}
}

func (g *Group) ID() uint32         { return g.id }
func (g *Group) Position() Position { return g.pos }
func (g *Group) Size() int          { return len(g.members) }

// Members returns the current membership in join order.
func (g *Group) Members() []*Participant {
	members := make([]*Participant, len(g.members))
	copy(members, g.members)
	return members
}

func (g *Group) add(p *Participant) {
	g.members = append(g.members, p)
	p.group = g
	g.updateCentroid()
}

func (g *Group) remove(p *Participant) {
	for i, member := range g.members {
		if member == p {
			g.members = append(g.members[:i], g.members[i+1:]...)
			break
		}
	}
	p.group = nil
	g.updateCentroid()
}

func (g *Group) updateCentroid() {
	if len(g.members) == 0 {
		return
	}
	var x, y float64
	for _, member := range g.members {
		x += member.pos.X
		y += member.pos.Y
	}
	n := float64(len(g.members))
	g.pos = Position{X: x / n, Y: y / n}
}

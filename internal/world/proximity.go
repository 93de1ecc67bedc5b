package world

import "math"

// GroupListener receives group membership deltas. Like ZoneEventSink,
// callbacks fire synchronously under the room lock. OnGroupJoin fires
// after the participant was added (so the group already contains it);
// OnGroupLeave fires after removal (the group no longer contains it).
type GroupListener interface {
	OnGroupJoin(p *Participant, g *Group)
	OnGroupLeave(p *Participant, g *Group)
}

// proximityEngine maintains the partition of a room's participants into
// groups under the two-threshold hysteresis rule: join at distance <=
// joinDistance, stay until distance to the group centroid exceeds
// retainDistance (> joinDistance). The gap between the two prevents
// membership flapping when a participant lingers near the join boundary.
type proximityEngine struct {
	joinDistance   float64
	retainDistance float64
	groups         map[uint32]*Group
	nextGroupID    uint32
	listener       GroupListener
	index          *ZoneIndex
}

func newProximityEngine(joinDistance, retainDistance float64, listener GroupListener, index *ZoneIndex) *proximityEngine {
	return &proximityEngine{
		joinDistance:   joinDistance,
		retainDistance: retainDistance,
		groups:         make(map[uint32]*Group),
		listener:       listener,
		index:          index,
	}
}

// refresh re-evaluates one participant's group membership after its
// position or silent flag changed. candidates is the set of other
// participants eligible for pairing (non-silent, ungrouped, not p).
func (e *proximityEngine) refresh(p *Participant, candidates []*Participant) {
	if p.silent {
		if p.group != nil {
			e.leave(p)
		}
		return
	}

	if g := p.group; g != nil {
		if p.pos.Distance(g.pos) > e.retainDistance {
			e.leave(p)
		} else {
			e.moveGroup(g)
		}
		return
	}

	target, peer := e.closestWithinJoin(p, candidates)
	switch {
	case target != nil:
		target.add(p)
		e.moveGroup(target)
		e.listener.OnGroupJoin(p, target)
	case peer != nil:
		e.form(peer, p)
	}
}

// closestWithinJoin finds the nearest join candidate within the join
// threshold: either an existing group (by centroid distance) or an
// ungrouped participant. Groups and participants compete on equal
// footing; ties between two groups resolve to the lower group ID so the
// outcome is deterministic.
func (e *proximityEngine) closestWithinJoin(p *Participant, candidates []*Participant) (*Group, *Participant) {
	var (
		bestGroup *Group
		bestPeer  *Participant
	)
	bestDist := math.Inf(1)

	// Groups are visited in ascending ID order and only a strictly closer
	// candidate displaces the current best, so equal-distance ties go to
	// the lower group ID.
	for _, g := range e.sortedGroups() {
		dist := p.pos.Distance(g.pos)
		if dist <= e.joinDistance && dist < bestDist {
			bestGroup, bestDist = g, dist
		}
	}
	for _, candidate := range candidates {
		if candidate == p || candidate.silent || candidate.group != nil || candidate.left {
			continue
		}
		dist := p.pos.Distance(candidate.pos)
		if dist <= e.joinDistance && dist < bestDist {
			bestGroup, bestPeer, bestDist = nil, candidate, dist
		}
	}
	if bestGroup != nil {
		return bestGroup, nil
	}
	return nil, bestPeer
}

// form creates a new two-member group. Join callbacks fire per member in
// join order, so the second callback is the first to see a peer — the
// mesh layer derives exactly one pairwise start from it.
func (e *proximityEngine) form(a, b *Participant) {
	e.nextGroupID++
	g := newGroup(e.nextGroupID)
	e.groups[g.id] = g

	g.add(a)
	e.index.Enter(g)
	e.listener.OnGroupJoin(a, g)

	g.add(b)
	e.moveGroup(g)
	e.listener.OnGroupJoin(b, g)
}

// leave removes the participant from its group, dissolving the group when
// fewer than two members remain: the last member returns to ungrouped.
func (e *proximityEngine) leave(p *Participant) {
	g := p.group
	if g == nil {
		return
	}
	g.remove(p)
	e.listener.OnGroupLeave(p, g)

	if g.Size() >= 2 {
		e.moveGroup(g)
		return
	}

	for _, last := range g.Members() {
		g.remove(last)
		e.listener.OnGroupLeave(last, g)
	}
	delete(e.groups, g.id)
	e.index.Leave(g)
}

// remove detaches a departing participant, dissolving its group if needed.
func (e *proximityEngine) remove(p *Participant) {
	if p.group != nil {
		e.leave(p)
	}
}

// moveGroup pushes a recomputed centroid through the zone index.
func (e *proximityEngine) moveGroup(g *Group) {
	g.updateCentroid()
	e.index.Move(g)
}

// sortedGroups returns groups ordered by ascending ID so iteration order
// (and therefore tie-breaking) is stable.
func (e *proximityEngine) sortedGroups() []*Group {
	groups := make([]*Group, 0, len(e.groups))
	for _, g := range e.groups {
		groups = append(groups, g)
	}
	for i := 1; i < len(groups); i++ {
		for j := i; j > 0 && groups[j-1].id > groups[j].id; j-- {
			groups[j-1], groups[j] = groups[j], groups[j-1]
		}
	}
	return groups
}

package world

// Participant is one live session inside a room. The session ID is unique
// within the room for the lifetime of the process; the UUID is stable
// across reconnects, so one UUID may map to several concurrent sessions.
//
// A participant is owned by exactly one room. All mutable fields are
// guarded by that room's lock; the identity fields are immutable after
// construction.
type Participant struct {
	id        int32
	uuid      string
	name      string
	avatar    string
	tags      []string
	transport Transport

	pos    Position
	silent bool
	group  *Group
	left   bool
}

func (p *Participant) ID() int32            { return p.id }
func (p *Participant) UUID() string         { return p.uuid }
func (p *Participant) Name() string         { return p.name }
func (p *Participant) Avatar() string       { return p.avatar }
func (p *Participant) Transport() Transport { return p.transport }

// Position returns the last applied position. Callers outside room
// operations must treat it as a snapshot.
func (p *Participant) Position() Position { return p.pos }

// Tags returns a copy of the participant's capability tags.
func (p *Participant) Tags() []string {
	tags := make([]string, len(p.tags))
	copy(tags, p.tags)
	return tags
}

// HasTag reports whether the participant carries the given capability tag.
func (p *Participant) HasTag(tag string) bool {
	for _, t := range p.tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Group returns the participant's current group, or nil while ungrouped.
func (p *Participant) Group() *Group { return p.group }

// Silent reports whether the participant opted out of proximity grouping.
func (p *Participant) Silent() bool { return p.silent }

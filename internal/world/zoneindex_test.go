package world

import "testing"

type zoneEvent struct {
	kind     string
	m        Movable
	from     *ZoneCoord
	to       *ZoneCoord
	listener Transport
}

type recordingZoneSink struct {
	events []zoneEvent
}

func (s *recordingZoneSink) OnZoneEnter(m Movable, from *ZoneCoord, listener Transport) {
	s.events = append(s.events, zoneEvent{kind: "enter", m: m, from: from, listener: listener})
}

func (s *recordingZoneSink) OnZoneMove(m Movable, listener Transport) {
	s.events = append(s.events, zoneEvent{kind: "move", m: m, listener: listener})
}

func (s *recordingZoneSink) OnZoneLeave(m Movable, to *ZoneCoord, listener Transport) {
	s.events = append(s.events, zoneEvent{kind: "leave", m: m, to: to, listener: listener})
}

func (s *recordingZoneSink) reset() {
	s.events = s.events[:0]
}

type fakeTransport struct {
	name     string
	messages []any
	ended    bool
}

func (t *fakeTransport) Write(message any) error {
	t.messages = append(t.messages, message)
	return nil
}

func (t *fakeTransport) End()             { t.ended = true }
func (t *fakeTransport) IsWritable() bool { return !t.ended }

func testParticipant(id int32, x, y float64) *Participant {
	return &Participant{id: id, uuid: "uuid", pos: Position{X: x, Y: y}}
}

func TestZoneIndexEnterNotifiesListeners(t *testing.T) {
	sink := &recordingZoneSink{}
	idx := NewZoneIndex(100, sink)

	listener := &fakeTransport{name: "listener"}
	idx.AddListener(listener, 0, 0)

	p := testParticipant(1, 50, 50)
	idx.Enter(p)

	if len(sink.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(sink.events))
	}
	ev := sink.events[0]
	if ev.kind != "enter" || ev.m != p || ev.listener != listener {
		t.Fatalf("unexpected event %+v", ev)
	}
	if ev.from != nil {
		t.Fatalf("first enter must carry no origin zone, got %+v", ev.from)
	}
}

func TestZoneIndexAddListenerReturnsSnapshot(t *testing.T) {
	sink := &recordingZoneSink{}
	idx := NewZoneIndex(100, sink)

	inside := testParticipant(1, 50, 50)
	edge := testParticipant(2, 150, 50)
	far := testParticipant(3, 950, 950)
	idx.Enter(inside)
	idx.Enter(edge)
	idx.Enter(far)

	listener := &fakeTransport{}
	snapshot := idx.AddListener(listener, 0, 0)

	if len(snapshot) != 2 {
		t.Fatalf("expected 2 movables in neighborhood snapshot, got %d", len(snapshot))
	}
	for _, m := range snapshot {
		if m == far {
			t.Fatalf("snapshot must not include movables outside the neighborhood")
		}
	}
}

func TestZoneIndexMoveWithinZoneEmitsMove(t *testing.T) {
	sink := &recordingZoneSink{}
	idx := NewZoneIndex(100, sink)

	listener := &fakeTransport{}
	idx.AddListener(listener, 0, 0)

	p := testParticipant(1, 10, 10)
	idx.Enter(p)
	sink.reset()

	p.pos = Position{X: 20, Y: 20}
	idx.Move(p)

	if len(sink.events) != 1 || sink.events[0].kind != "move" {
		t.Fatalf("expected a single move event, got %+v", sink.events)
	}
}

func TestZoneIndexCrossZoneNeverPairsLeaveEnter(t *testing.T) {
	sink := &recordingZoneSink{}
	idx := NewZoneIndex(100, sink)

	// Subscribed to the neighborhood of (0,0): covers both the old zone
	// (0,0) and the new zone (1,0).
	both := &fakeTransport{name: "both"}
	idx.AddListener(both, 0, 0)

	// Subscribed around (3,0): covers (2,0) through (4,0), so it sees only
	// the arrival side once the movable reaches (2,0).
	newSide := &fakeTransport{name: "newSide"}
	idx.AddListener(newSide, 3, 0)

	p := testParticipant(1, 50, 50)
	idx.Enter(p)
	sink.reset()

	p.pos = Position{X: 150, Y: 50}
	idx.Move(p)

	for _, ev := range sink.events {
		if ev.listener == both && ev.kind != "move" {
			t.Fatalf("dual-subscribed listener must get exactly one move, got %q", ev.kind)
		}
	}

	sink.reset()
	p.pos = Position{X: 250, Y: 50}
	idx.Move(p)

	var bothKinds, newKinds []string
	for _, ev := range sink.events {
		switch ev.listener {
		case both:
			bothKinds = append(bothKinds, ev.kind)
			if ev.kind == "leave" && (ev.to == nil || ev.to.X != 2) {
				t.Fatalf("leave event must name the destination zone, got %+v", ev.to)
			}
		case newSide:
			newKinds = append(newKinds, ev.kind)
			if ev.kind == "enter" && (ev.from == nil || ev.from.X != 1) {
				t.Fatalf("enter event must name the origin zone, got %+v", ev.from)
			}
		}
	}
	if len(bothKinds) != 1 || bothKinds[0] != "leave" {
		t.Fatalf("old-side listener expected one leave, got %v", bothKinds)
	}
	if len(newKinds) != 1 || newKinds[0] != "enter" {
		t.Fatalf("new-side listener expected one enter, got %v", newKinds)
	}
}

func TestZoneIndexLeaveEmitsFinalDeparture(t *testing.T) {
	sink := &recordingZoneSink{}
	idx := NewZoneIndex(100, sink)

	listener := &fakeTransport{}
	idx.AddListener(listener, 0, 0)

	p := testParticipant(1, 50, 50)
	idx.Enter(p)
	sink.reset()

	idx.Leave(p)

	if len(sink.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(sink.events))
	}
	ev := sink.events[0]
	if ev.kind != "leave" || ev.to != nil {
		t.Fatalf("final departure must be a leave with nil destination, got %+v", ev)
	}
	if _, tracked := idx.CurrentZone(p); tracked {
		t.Fatalf("movable must be untracked after leave")
	}

	// Leaving again is a no-op.
	idx.Leave(p)
	if len(sink.events) != 1 {
		t.Fatalf("duplicate leave must not emit, got %d events", len(sink.events))
	}
}

func TestZoneIndexListenerMultipleFocuses(t *testing.T) {
	sink := &recordingZoneSink{}
	idx := NewZoneIndex(100, sink)

	listener := &fakeTransport{}
	idx.AddListener(listener, 0, 0)
	idx.AddListener(listener, 2, 0)

	// Zone (1,0) is covered by both neighborhoods; removing one focus must
	// keep the listener attached there.
	idx.RemoveListener(listener, 0, 0)

	p := testParticipant(1, 150, 50)
	idx.Enter(p)

	if len(sink.events) != 1 || sink.events[0].kind != "enter" {
		t.Fatalf("listener should still observe zone (1,0), got %+v", sink.events)
	}

	idx.RemoveListener(listener, 2, 0)
	sink.reset()

	q := testParticipant(2, 160, 50)
	idx.Enter(q)
	if len(sink.events) != 0 {
		t.Fatalf("detached listener must not receive events, got %+v", sink.events)
	}
}

func TestZoneIndexRemoveListenerTwiceIsNoOp(t *testing.T) {
	sink := &recordingZoneSink{}
	idx := NewZoneIndex(100, sink)

	stable := &fakeTransport{name: "stable"}
	idx.AddListener(stable, 0, 0)
	gone := &fakeTransport{name: "gone"}
	idx.AddListener(gone, 0, 0)

	idx.RemoveListener(gone, 0, 0)
	idx.RemoveListener(gone, 0, 0)

	p := testParticipant(1, 50, 50)
	idx.Enter(p)

	// The second remove changed nothing: the remaining listener still
	// observes its neighborhood, the removed one stays detached.
	if len(sink.events) != 1 || sink.events[0].listener != stable {
		t.Fatalf("expected only the remaining listener notified, got %+v", sink.events)
	}
	if _, ok := idx.focuses[gone]; ok {
		t.Fatalf("removed listener must hold no focuses")
	}
}

func TestZoneIndexEmptyZonesAreCollected(t *testing.T) {
	sink := &recordingZoneSink{}
	idx := NewZoneIndex(100, sink)

	p := testParticipant(1, 50, 50)
	idx.Enter(p)
	p.pos = Position{X: 950, Y: 950}
	idx.Move(p)

	if _, ok := idx.zones[ZoneCoord{X: 0, Y: 0}]; ok {
		t.Fatalf("vacated zone without listeners must be garbage collected")
	}

	idx.Leave(p)
	if len(idx.zones) != 0 {
		t.Fatalf("expected no zones left, got %d", len(idx.zones))
	}
}

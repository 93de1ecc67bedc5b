package world

// Transport abstracts the outbound connection of a participant or of a
// zone/room subscriber. Implementations are expected to tolerate writes
// after the peer disconnected: a write to a non-writable transport is a
// silent no-op, never an error that aborts a broadcast loop.
type Transport interface {
	// Write queues one message for delivery. The message is serialized by
	// the transport; the world layer never sees wire bytes.
	Write(message any) error

	// End closes the connection after pending writes flush.
	End()

	// IsWritable reports whether writes can still reach the peer.
	IsWritable() bool
}

package workadventure

import "time"

const (
	ProtocolVersion = 1

	// DefaultCellSize is the edge length of one spatial zone. It must stay
	// large relative to per-update movement distance so a participant cannot
	// skip over a zone between two consecutive position updates.
	DefaultCellSize = 320.0

	// DefaultMinimumDistance is the join threshold: two ungrouped
	// participants (or a participant and a group centroid) at most this far
	// apart are merged into a group.
	DefaultMinimumDistance = 64.0

	// DefaultGroupRadius is the retain threshold. It is strictly larger than
	// the join threshold; the gap is the hysteresis band that keeps a
	// participant lingering near the join boundary from flapping in and out
	// of its group.
	DefaultGroupRadius = 96.0

	// DefaultBanGraceDelay is how long a banned participant keeps its
	// connection after the ban notice, so the notice can flush before the
	// transport is terminated.
	DefaultBanGraceDelay = 10 * time.Second

	// DefaultCredentialTTL is the forward validity window of ephemeral mesh
	// credentials.
	DefaultCredentialTTL = 4 * time.Hour

	// DefaultShedThreshold is the normalized load above which continuous
	// movement updates are dropped.
	DefaultShedThreshold = 0.85
)

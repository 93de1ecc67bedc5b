package world

import "context"

// VariableDefinition declares one room variable, its default value, and
// the capability tags gating reads and writes. An empty tag means
// unrestricted.
type VariableDefinition struct {
	Name       string `json:"name" yaml:"name"`
	Default    string `json:"default" yaml:"default"`
	ReadableBy string `json:"readableBy" yaml:"readableBy"`
	WritableBy string `json:"writableBy" yaml:"writableBy"`
}

// RoomConfig is the room definition fetched from the map source at
// creation time. Zero thresholds are replaced with process defaults by
// the room constructor.
type RoomConfig struct {
	// MaxParticipants caps occupancy; 0 means unlimited.
	MaxParticipants int `json:"maxParticipants" yaml:"maxParticipants"`

	// AdmitWhenFull selects the over-capacity policy: admit the join and
	// signal a warning upward, instead of rejecting it.
	AdmitWhenFull bool `json:"admitWhenFull" yaml:"admitWhenFull"`

	CellSize        float64 `json:"cellSize" yaml:"cellSize"`
	MinimumDistance float64 `json:"minimumDistance" yaml:"minimumDistance"`
	GroupRadius     float64 `json:"groupRadius" yaml:"groupRadius"`

	Variables []VariableDefinition `json:"variables" yaml:"variables"`
}

// ConfigSource fetches a room definition from the external map-description
// collaborator. Failures surface as RoomInitializationError to whoever is
// creating the room.
type ConfigSource interface {
	FetchRoomConfig(ctx context.Context, roomID string) (RoomConfig, error)
}

// ConfigSourceFunc adapts a function to the ConfigSource interface.
type ConfigSourceFunc func(ctx context.Context, roomID string) (RoomConfig, error)

func (f ConfigSourceFunc) FetchRoomConfig(ctx context.Context, roomID string) (RoomConfig, error) {
	return f(ctx, roomID)
}

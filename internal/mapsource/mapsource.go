// Package mapsource resolves room definitions. Rooms are identified by
// URL-like keys; the definition (occupancy limits, variable declarations,
// spatial tuning) comes either from an HTTP map-description service or
// from a directory of YAML files for self-contained deployments.
package mapsource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/iits-consulting/workadventure/internal/world"
)

// HTTPSource fetches room definitions as JSON from a map-description
// service: GET {baseURL}/map?roomId={id}.
type HTTPSource struct {
	baseURL string
	client  *http.Client
}

func NewHTTPSource(baseURL string, client *http.Client) *HTTPSource {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPSource{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (s *HTTPSource) FetchRoomConfig(ctx context.Context, roomID string) (world.RoomConfig, error) {
	var cfg world.RoomConfig

	endpoint := s.baseURL + "/map?roomId=" + url.QueryEscape(roomID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return cfg, fmt.Errorf("building map request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return cfg, fmt.Errorf("fetching map for %q: %w", roomID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return cfg, fmt.Errorf("map service returned %d for %q", resp.StatusCode, roomID)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return cfg, fmt.Errorf("reading map response for %q: %w", roomID, err)
	}
	if err := json.Unmarshal(body, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing map response for %q: %w", roomID, err)
	}
	return cfg, nil
}

// DirSource loads room definitions from {dir}/{escaped-room-id}.yaml. A
// missing file falls back to the default definition, so unknown rooms
// still open with process defaults.
type DirSource struct {
	dir string
}

func NewDirSource(dir string) *DirSource {
	return &DirSource{dir: dir}
}

func (s *DirSource) FetchRoomConfig(_ context.Context, roomID string) (world.RoomConfig, error) {
	var cfg world.RoomConfig

	path := filepath.Join(s.dir, escapeRoomID(roomID)+".yaml")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("reading room definition %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing room definition %q: %w", path, err)
	}
	return cfg, nil
}

// escapeRoomID flattens a URL-like room key into a safe file name.
func escapeRoomID(roomID string) string {
	return url.PathEscape(roomID)
}

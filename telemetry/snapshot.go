package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"
)

// SnapshotVersion is incremented when the format changes.
const SnapshotVersion = 1

// Snapshot holds the particle state of a world for inspection and restart.
type Snapshot struct {
	Version int   `json:"version"`
	Seed    int64 `json:"seed"`

	Step    int     `json:"step"`
	SimTime float64 `json:"sim_time"`

	Cloths []ClothState `json:"cloths"`

	// Particle state, indexed like the world's particle container
	X []r3.Vec `json:"x"`
	V []r3.Vec `json:"v"`

	Bookmark *Bookmark `json:"bookmark,omitempty"`
}

// ClothState describes where one cloth lives in the particle arrays.
type ClothState struct {
	Name   string `json:"name"`
	Offset int    `json:"offset"`
	Count  int    `json:"count"`
	Layers int    `json:"layers"`
	Cols   int    `json:"cols"`
	Rows   int    `json:"rows"`
}

// SaveSnapshot writes a snapshot to disk.
// Returns the filepath where it was saved.
func SaveSnapshot(snapshot *Snapshot, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}

	name := fmt.Sprintf("snapshot_%d", snapshot.Step)
	if snapshot.Bookmark != nil {
		sanitized := strings.ReplaceAll(string(snapshot.Bookmark.Type), " ", "_")
		name = fmt.Sprintf("snapshot_%d_%s", snapshot.Step, sanitized)
	}
	name += ".json"

	path := filepath.Join(dir, name)

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}

	return path, nil
}

// LoadSnapshot reads a snapshot from disk.
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	if snapshot.Version != SnapshotVersion {
		return nil, fmt.Errorf("snapshot version %d, want %d", snapshot.Version, SnapshotVersion)
	}
	if len(snapshot.X) != len(snapshot.V) {
		return nil, fmt.Errorf("snapshot has %d positions but %d velocities", len(snapshot.X), len(snapshot.V))
	}

	return &snapshot, nil
}

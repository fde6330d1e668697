package telemetry

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

func TestSnapshotSaveLoad(t *testing.T) {
	tmpDir := t.TempDir()

	snapshot := &Snapshot{
		Version: SnapshotVersion,
		Seed:    42,
		Step:    120,
		SimTime: 2.0,
		Cloths: []ClothState{
			{Name: "cloth", Offset: 0, Count: 2, Layers: 1, Cols: 2, Rows: 1},
		},
		X: []r3.Vec{{X: 0, Y: 1}, {X: 0.1, Y: 0.95, Z: -0.02}},
		V: []r3.Vec{{}, {Y: -0.5}},
		Bookmark: &Bookmark{
			Type:        BookmarkOverstretch,
			Step:        120,
			Description: "Test bookmark",
		},
	}

	path, err := SaveSnapshot(snapshot, tmpDir)
	if err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("Snapshot file not created at %s", path)
	}

	loaded, err := LoadSnapshot(path)
	if err != nil {
		t.Fatalf("LoadSnapshot failed: %v", err)
	}

	if loaded.Seed != snapshot.Seed {
		t.Errorf("Seed mismatch: got %d, want %d", loaded.Seed, snapshot.Seed)
	}
	if loaded.Step != snapshot.Step {
		t.Errorf("Step mismatch: got %d, want %d", loaded.Step, snapshot.Step)
	}
	if len(loaded.Cloths) != 1 || loaded.Cloths[0] != snapshot.Cloths[0] {
		t.Errorf("Cloths mismatch: got %+v", loaded.Cloths)
	}
	for i := range snapshot.X {
		if loaded.X[i] != snapshot.X[i] || loaded.V[i] != snapshot.V[i] {
			t.Errorf("particle %d: got %v/%v, want %v/%v", i, loaded.X[i], loaded.V[i], snapshot.X[i], snapshot.V[i])
		}
	}
	if loaded.Bookmark == nil {
		t.Error("Bookmark not loaded")
	} else if loaded.Bookmark.Type != snapshot.Bookmark.Type {
		t.Errorf("Bookmark type mismatch: got %s, want %s", loaded.Bookmark.Type, snapshot.Bookmark.Type)
	}
}

func TestSnapshotFilename(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name     string
		snapshot *Snapshot
		want     string
	}{
		{
			name: "with bookmark",
			snapshot: &Snapshot{
				Version:  SnapshotVersion,
				Step:     5000,
				Bookmark: &Bookmark{Type: BookmarkEnergySpike, Step: 5000},
			},
			want: "snapshot_5000_energy_spike.json",
		},
		{
			name:     "without bookmark",
			snapshot: &Snapshot{Version: SnapshotVersion, Step: 3000},
			want:     "snapshot_3000.json",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, err := SaveSnapshot(tt.snapshot, tmpDir)
			if err != nil {
				t.Fatalf("SaveSnapshot failed: %v", err)
			}
			if want := filepath.Join(tmpDir, tt.want); path != want {
				t.Errorf("Path mismatch: got %s, want %s", path, want)
			}
		})
	}
}

func TestLoadSnapshotRejectsInvalid(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{"wrong version", `{"version": 99}`, "version"},
		{"length mismatch", `{"version": 1, "x": [{"X": 0, "Y": 0, "Z": 0}], "v": []}`, "velocities"},
		{"not json", `{`, "unmarshal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(tmpDir, strings.ReplaceAll(tt.name, " ", "_")+".json")
			if err := os.WriteFile(path, []byte(tt.data), 0644); err != nil {
				t.Fatal(err)
			}
			_, err := LoadSnapshot(path)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("LoadSnapshot error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

package sim

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/drape/telemetry"
)

func TestSnapshotRestore(t *testing.T) {
	cfg := testConfig()

	a := NewWorld(cfg, Options{})
	defer a.Close()
	a.AddCloth(SpecFromConfig(cfg))
	for i := 0; i < 10; i++ {
		a.Step()
	}
	snap := a.Snapshot(nil)
	if snap.Step != 10 || len(snap.Cloths) != 1 || len(snap.X) != a.Particles().Len() {
		t.Fatalf("unexpected snapshot header %+v", snap.Cloths)
	}

	b := NewWorld(cfg, Options{})
	defer b.Close()
	b.AddCloth(SpecFromConfig(cfg))
	if err := b.Restore(snap); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if b.StepCount() != 10 || b.SimTime() != a.SimTime() {
		t.Errorf("clock not restored: step %d time %g", b.StepCount(), b.SimTime())
	}

	for i := 0; i < 5; i++ {
		a.Step()
		b.Step()
	}
	pa, pb := a.Particles(), b.Particles()
	for i := range pa.X {
		if pa.X[i] != pb.X[i] {
			t.Fatalf("particle %d diverged after restore: %v vs %v", i, pa.X[i], pb.X[i])
		}
	}
}

func TestRestoreRejectsMismatch(t *testing.T) {
	cfg := testConfig()
	w := NewWorld(cfg, Options{})
	defer w.Close()
	w.AddCloth(SpecFromConfig(cfg))
	good := w.Snapshot(nil)

	tests := []struct {
		name    string
		mutate  func(s *telemetry.Snapshot)
		wantErr string
	}{
		{"particle count", func(s *telemetry.Snapshot) { s.X = s.X[:3]; s.V = s.V[:3] }, "particles"},
		{"cloth count", func(s *telemetry.Snapshot) { s.Cloths = nil }, "cloths"},
		{"layout", func(s *telemetry.Snapshot) { s.Cloths[0].Cols++ }, "layout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := *good
			s.X = append(good.X[:0:0], good.X...)
			s.V = append(good.V[:0:0], good.V...)
			s.Cloths = append(good.Cloths[:0:0], good.Cloths...)
			tt.mutate(&s)
			err := w.Restore(&s)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Restore error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestBookmarkWritesSnapshot(t *testing.T) {
	cfg := testConfig()
	// Nothing moves the cloth, so it reports as settled.
	cfg.Forces.Gravity = [3]float64{}
	cfg.Derived.Gravity = r3.Vec{}
	cfg.Derived.Wind = r3.Vec{}
	cfg.Derived.PinAmplitude = r3.Vec{}
	cfg.Telemetry.StatsEvery = 1
	cfg.Telemetry.SnapshotOnBookmark = true

	dir := t.TempDir()
	output, err := telemetry.NewOutputManager(dir)
	if err != nil {
		t.Fatal(err)
	}
	w := NewWorld(cfg, Options{Output: output})
	defer w.Close()
	w.AddCloth(SpecFromConfig(cfg))
	for i := 0; i < 6; i++ {
		w.Step()
	}
	if err := output.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "bookmarks.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "settled,5,") {
		t.Errorf("bookmarks.csv missing settled row:\n%s", data)
	}

	snap, err := telemetry.LoadSnapshot(filepath.Join(dir, "snapshots", "snapshot_5_settled.json"))
	if err != nil {
		t.Fatalf("loading bookmark snapshot: %v", err)
	}
	if snap.Bookmark == nil || snap.Bookmark.Type != telemetry.BookmarkSettled {
		t.Errorf("snapshot bookmark = %+v", snap.Bookmark)
	}
}

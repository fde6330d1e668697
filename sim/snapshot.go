package sim

import (
	"fmt"
	"log/slog"

	"github.com/pthm-cable/drape/telemetry"
)

// Snapshot captures the particle state and cloth layout of the world.
func (w *World) Snapshot(bookmark *telemetry.Bookmark) *telemetry.Snapshot {
	p := w.particles
	s := &telemetry.Snapshot{
		Version:  telemetry.SnapshotVersion,
		Seed:     w.cfg.Forces.Seed,
		Step:     w.step,
		SimTime:  w.simTime,
		X:        append(p.X[:0:0], p.X...),
		V:        append(p.V[:0:0], p.V...),
		Bookmark: bookmark,
	}

	s.Cloths = w.clothLayout()
	return s
}

func (w *World) clothLayout() []telemetry.ClothState {
	var layout []telemetry.ClothState
	query := w.clothFilter.Query()
	for query.Next() {
		cloth, _, _, _, _ := query.Get()
		layout = append(layout, telemetry.ClothState{
			Name:   cloth.Name,
			Offset: cloth.Range.Offset,
			Count:  cloth.Range.Count,
			Layers: cloth.Layers,
			Cols:   cloth.Cols,
			Rows:   cloth.Rows,
		})
	}
	return layout
}

// Restore loads particle positions and velocities from a snapshot taken of
// a world with the same cloths. The step counter and clock are restored too.
func (w *World) Restore(s *telemetry.Snapshot) error {
	p := w.particles
	if len(s.X) != p.Len() || len(s.V) != p.Len() {
		return fmt.Errorf("snapshot has %d particles, world has %d", len(s.X), p.Len())
	}

	layout := w.clothLayout()
	if len(layout) != len(s.Cloths) {
		return fmt.Errorf("snapshot has %d cloths, world has %d", len(s.Cloths), len(layout))
	}
	for i := range layout {
		if layout[i] != s.Cloths[i] {
			return fmt.Errorf("cloth %d: snapshot layout %+v does not match %+v", i, s.Cloths[i], layout[i])
		}
	}

	copy(p.X, s.X)
	copy(p.V, s.V)
	copy(p.P, s.X)
	w.step = s.Step
	w.simTime = s.SimTime
	return nil
}

func (w *World) saveSnapshot(bookmark *telemetry.Bookmark) {
	path, err := telemetry.SaveSnapshot(w.Snapshot(bookmark), w.opts.Output.SnapshotDir())
	if err != nil {
		slog.Error("failed to save snapshot", "error", err)
		return
	}
	slog.Info("snapshot saved", "path", path, "step", w.step)
}

package telemetry

import (
	"testing"
	"time"
)

func TestPerfCollector_BasicTiming(t *testing.T) {
	pc := NewPerfCollector(10)

	for i := 0; i < 5; i++ {
		pc.StartStep()
		pc.StartPhase(PhasePredict)
		time.Sleep(100 * time.Microsecond)
		pc.StartPhase(PhaseSolve)
		time.Sleep(200 * time.Microsecond)
		pc.EndStep()
	}

	stats := pc.Stats()

	if stats.AvgStepDuration <= 0 {
		t.Error("expected positive average step duration")
	}
	if len(stats.PhaseAvg) == 0 {
		t.Error("expected phase averages to be populated")
	}
	if _, ok := stats.PhaseAvg[PhasePredict]; !ok {
		t.Error("expected predict phase to be tracked")
	}
	if _, ok := stats.PhaseAvg[PhaseSolve]; !ok {
		t.Error("expected solve phase to be tracked")
	}
}

func TestPerfCollector_RollingWindow(t *testing.T) {
	pc := NewPerfCollector(5)

	for i := 0; i < 10; i++ {
		pc.StartStep()
		pc.StartPhase(PhaseSolve)
		time.Sleep(10 * time.Microsecond)
		pc.EndStep()
	}

	stats := pc.Stats()

	if stats.AvgStepDuration <= 0 {
		t.Error("expected positive average step duration after window filled")
	}
	if stats.StepsPerSecond <= 0 {
		t.Error("expected positive steps per second")
	}
}

func TestPerfCollector_PhasesAccumulateAcrossSubsteps(t *testing.T) {
	pc := NewPerfCollector(10)

	pc.StartStep()
	for i := 0; i < 3; i++ {
		pc.StartPhase(PhasePredict)
		pc.StartPhase(PhaseSolve)
		time.Sleep(100 * time.Microsecond)
	}
	pc.EndStep()

	stats := pc.Stats()
	if stats.PhaseAvg[PhaseSolve] < 300*time.Microsecond {
		t.Errorf("expected solve time to accumulate to >= 300us, got %v", stats.PhaseAvg[PhaseSolve])
	}
}

func TestPerfCollector_PhasePercentages(t *testing.T) {
	pc := NewPerfCollector(10)

	for i := 0; i < 5; i++ {
		pc.StartStep()
		pc.StartPhase("fast")
		time.Sleep(10 * time.Microsecond)
		pc.StartPhase("slow")
		time.Sleep(100 * time.Microsecond)
		pc.EndStep()
	}

	stats := pc.Stats()

	fastPct := stats.PhasePct["fast"]
	slowPct := stats.PhasePct["slow"]
	if slowPct <= fastPct {
		t.Errorf("expected slow phase (%v%%) > fast phase (%v%%)", slowPct, fastPct)
	}
}

func TestPerfCollector_EmptyStats(t *testing.T) {
	pc := NewPerfCollector(10)

	stats := pc.Stats()

	if stats.AvgStepDuration != 0 {
		t.Error("expected zero avg step duration for empty collector")
	}
	if stats.PhaseAvg == nil {
		t.Error("expected non-nil PhaseAvg map")
	}
	if stats.PhasePct == nil {
		t.Error("expected non-nil PhasePct map")
	}
}

func TestPerfStats_ToCSV(t *testing.T) {
	s := PerfStats{
		AvgStepDuration: 2 * time.Millisecond,
		PhasePct:        map[string]float64{PhaseSolve: 80, PhaseCommit: 5},
	}
	row := s.ToCSV(120)
	if row.WindowEnd != 120 || row.AvgStepUS != 2000 {
		t.Errorf("unexpected row %+v", row)
	}
	if row.SolvePct != 80 || row.CommitPct != 5 || row.PinsPct != 0 {
		t.Errorf("unexpected phase columns %+v", row)
	}
}

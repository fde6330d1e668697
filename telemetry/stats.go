package telemetry

import (
	"log/slog"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// StepStats holds solver diagnostics sampled after a simulation step.
type StepStats struct {
	Step       int     `csv:"step"`
	SimTimeSec float64 `csv:"sim_time"`

	Particles   int `csv:"particles"`
	Constraints int `csv:"constraints"`
	Colors      int `csv:"colors"`

	// Stretch ratio (current / rest length) over all springs
	StretchMean float64 `csv:"stretch_mean"`
	StretchStd  float64 `csv:"stretch_std"`
	StretchP10  float64 `csv:"stretch_p10"`
	StretchP50  float64 `csv:"stretch_p50"`
	StretchP90  float64 `csv:"stretch_p90"`
	StretchMax  float64 `csv:"stretch_max"`

	// Bending
	Buckled     int     `csv:"buckled"`
	BuckledFrac float64 `csv:"buckled_frac"`

	// Thickness volume passes used by the last solve
	VolumePasses int `csv:"volume_passes"`

	// Particle motion
	SpeedMean     float64 `csv:"speed_mean"`
	SpeedMax      float64 `csv:"speed_max"`
	KineticEnergy float64 `csv:"kinetic_energy"`
	MinY          float64 `csv:"min_y"`
}

// Distribution summarizes a sample of values.
type Distribution struct {
	Mean, Std     float64
	P10, P50, P90 float64
	Max           float64
}

// Percentile calculates the p-th percentile of a sorted slice.
// p should be in [0, 1]. Returns 0 if slice is empty.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}

	// Linear interpolation
	idx := p * float64(n-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// Summarize computes the population mean, standard deviation, percentiles
// and maximum of values. An empty sample yields the zero Distribution.
func Summarize(values []float64) Distribution {
	if len(values) == 0 {
		return Distribution{}
	}

	mean, std := stat.PopMeanStdDev(values, nil)

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	return Distribution{
		Mean: mean,
		Std:  std,
		P10:  Percentile(sorted, 0.10),
		P50:  Percentile(sorted, 0.50),
		P90:  Percentile(sorted, 0.90),
		Max:  floats.Max(sorted),
	}
}

// SetStretch fills the stretch columns from a distribution.
func (s *StepStats) SetStretch(d Distribution) {
	s.StretchMean = d.Mean
	s.StretchStd = d.Std
	s.StretchP10 = d.P10
	s.StretchP50 = d.P50
	s.StretchP90 = d.P90
	s.StretchMax = d.Max
}

// LogValue implements slog.LogValuer for structured logging.
func (s StepStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("step", s.Step),
		slog.Float64("sim_time", s.SimTimeSec),
		slog.Int("particles", s.Particles),
		slog.Int("constraints", s.Constraints),
		slog.Int("colors", s.Colors),
		slog.Float64("stretch_mean", s.StretchMean),
		slog.Float64("stretch_std", s.StretchStd),
		slog.Float64("stretch_p10", s.StretchP10),
		slog.Float64("stretch_p50", s.StretchP50),
		slog.Float64("stretch_p90", s.StretchP90),
		slog.Float64("stretch_max", s.StretchMax),
		slog.Int("buckled", s.Buckled),
		slog.Float64("buckled_frac", s.BuckledFrac),
		slog.Int("volume_passes", s.VolumePasses),
		slog.Float64("speed_mean", s.SpeedMean),
		slog.Float64("speed_max", s.SpeedMax),
		slog.Float64("kinetic_energy", s.KineticEnergy),
		slog.Float64("min_y", s.MinY),
	)
}

// LogStats logs the step stats using slog.
func (s StepStats) LogStats() {
	slog.Info("stats",
		"step", s.Step,
		"sim_time", s.SimTimeSec,
		"stretch_p50", s.StretchP50,
		"stretch_max", s.StretchMax,
		"buckled", s.Buckled,
		"volume_passes", s.VolumePasses,
		"speed_max", s.SpeedMax,
		"kinetic_energy", s.KineticEnergy,
	)
}

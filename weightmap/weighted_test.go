package weightmap

import (
	"math"
	"testing"
)

func TestGetValueConstant(t *testing.T) {
	v := New(Range{Low: 0.2, High: 0.8}, 0, 1, nil)
	if v.HasWeightMap() {
		t.Fatal("expected constant field")
	}
	for _, i := range []int{0, 5, 1000} {
		if got := v.GetValue(i); math.Abs(got-0.8) > 1e-12 {
			t.Errorf("GetValue(%d) = %v, want 0.8", i, got)
		}
	}
}

func TestGetValueWeighted(t *testing.T) {
	tests := []struct {
		name   string
		rng    Range
		weight float64
		lo, hi float64
		want   float64
	}{
		{"midpoint", Range{0, 10}, 0.5, 0, 100, 5},
		{"low end", Range{2, 4}, 0, 0, 100, 2},
		{"clamped above", Range{0, 10}, 1, 0, 6, 6},
		{"clamped below", Range{-5, 5}, 0, 0, 10, 0},
		{"weight above one", Range{0, 10}, 3, 0, 100, 10},
		{"negative weight", Range{0, 10}, -1, 0, 100, 0},
		{"nan weight", Range{1, 10}, math.NaN(), 0, 100, 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v := New(tc.rng, tc.lo, tc.hi, []float64{tc.weight, 0})
			if got := v.GetValue(0); math.Abs(got-tc.want) > 1e-12 {
				t.Errorf("GetValue = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestSetRangeKeepsWeights(t *testing.T) {
	v := New(Range{0, 1}, 0, 100, []float64{0.25, 0.75})
	v.SetRange(Range{0, 40})
	if got := v.GetValue(0); math.Abs(got-10) > 1e-12 {
		t.Errorf("GetValue(0) = %v, want 10", got)
	}
	if got := v.GetValue(1); math.Abs(got-30) > 1e-12 {
		t.Errorf("GetValue(1) = %v, want 30", got)
	}
}

func TestFromParticleWeights(t *testing.T) {
	springs := [][2]int{{10, 11}, {11, 12}}
	weights := []float64{0, 1, 0.5} // particles 10, 11, 12

	v := FromParticleWeights(Range{0, 2}, 0, 10, weights, 10, springs)
	if !v.HasWeightMap() {
		t.Fatal("expected weight map")
	}
	if got := v.GetValue(0); math.Abs(got-1) > 1e-12 {
		t.Errorf("GetValue(0) = %v, want 1", got)
	}
	if got := v.GetValue(1); math.Abs(got-1.5) > 1e-12 {
		t.Errorf("GetValue(1) = %v, want 1.5", got)
	}

	uniform := FromParticleWeights(Range{0, 2}, 0, 10, []float64{0.5, 0.5, 0.5}, 10, springs)
	if uniform.HasWeightMap() {
		t.Error("uniform map should resolve to a constant")
	}
	if got := uniform.GetValue(1); math.Abs(got-1) > 1e-12 {
		t.Errorf("uniform GetValue = %v, want 1", got)
	}

	none := FromParticleWeights(Range{0, 2}, 0, 10, nil, 10, springs)
	if got := none.GetValue(0); got != 2 {
		t.Errorf("no map GetValue = %v, want 2", got)
	}
}

func TestReorderIndices(t *testing.T) {
	v := New(Range{0, 1}, 0, 1, []float64{0.1, 0.2, 0.3})
	v.ReorderIndices([]int{2, 0, 1})
	want := []float64{0.3, 0.1, 0.2}
	for i, w := range want {
		if got := v.GetValue(i); math.Abs(got-w) > 1e-12 {
			t.Errorf("GetValue(%d) = %v, want %v", i, got, w)
		}
	}

	v.ReorderIndicesAndShrink([]int{1, -1, 0}, 2)
	if v.Len() != 2 {
		t.Fatalf("Len = %d, want 2", v.Len())
	}
	if got := v.GetValue(0); math.Abs(got-0.2) > 1e-12 {
		t.Errorf("GetValue(0) = %v, want 0.2", got)
	}
	if got := v.GetValue(1); math.Abs(got-0.3) > 1e-12 {
		t.Errorf("GetValue(1) = %v, want 0.3", got)
	}
}

func TestResolve(t *testing.T) {
	v := New(Range{0, 1}, 0, 1, nil)
	if got := v.Resolve(nil, nil); got != nil {
		t.Errorf("constant Resolve = %v, want nil", got)
	}

	v = New(Range{0, 1}, 0, 1, []float64{0.5, 1})
	got := v.Resolve(nil, func(x float64) float64 { return x * x })
	if len(got) != 2 || math.Abs(got[0]-0.25) > 1e-12 || math.Abs(got[1]-1) > 1e-12 {
		t.Errorf("Resolve = %v, want [0.25 1]", got)
	}
}

package sim

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/drape/components"
	"github.com/pthm-cable/drape/mesh"
)

// applyForces adds the aerodynamic force of every surface triangle to the
// velocities of its dynamic vertices.
func (w *World) applyForces(dt float64) {
	p := w.particles
	query := w.clothFilter.Query()
	for query.Next() {
		_, surface, _, _, aero := query.Get()
		if aero.Drag == 0 && aero.Lift == 0 {
			continue
		}
		for _, t := range surface.Triangles {
			n := mesh.Normal(p.X, t)
			nLen := r3.Norm(n)
			if nLen <= 1e-12 {
				continue
			}
			area := nLen / 2
			n = r3.Scale(1/nLen, n)

			centroid := r3.Scale(1.0/3, r3.Add(r3.Add(p.X[t[0]], p.X[t[1]]), p.X[t[2]]))
			vel := r3.Scale(1.0/3, r3.Add(r3.Add(p.V[t[0]], p.V[t[1]]), p.V[t[2]]))
			rel := r3.Sub(w.windAt(centroid, w.simTime), vel)

			f := r3.Scale(1.0/3, aeroForce(aero, n, area, rel))
			for k := 0; k < 3; k++ {
				if invM := p.InvM[t[k]]; invM != 0 {
					p.V[t[k]] = r3.Add(p.V[t[k]], r3.Scale(dt*invM, f))
				}
			}
		}
	}
}

// aeroForce returns the force of the relative air velocity rel on a
// triangle of the given unit normal and area: quadratic drag along the
// normal plus lift perpendicular to the flow.
func aeroForce(aero *components.Aero, n r3.Vec, area float64, rel r3.Vec) r3.Vec {
	vn := r3.Dot(rel, n)
	f := r3.Scale(aero.Drag*area*vn*math.Abs(vn), n)

	speed2 := r3.Norm2(rel)
	if aero.Lift == 0 || speed2 <= 1e-12 {
		return f
	}
	dir := r3.Scale(1/math.Sqrt(speed2), rel)
	cos := r3.Dot(n, dir)
	// n - cos*dir is perpendicular to the flow, sin long.
	lift := r3.Scale(aero.Lift*area*speed2*cos, r3.Sub(n, r3.Scale(cos, dir)))
	return r3.Add(f, lift)
}

// windAt returns the wind velocity at x and time t: the configured wind
// scaled by simplex noise gusts.
func (w *World) windAt(x r3.Vec, t float64) r3.Vec {
	base := w.cfg.Derived.Wind
	f := w.cfg.Forces
	if f.Turbulence == 0 {
		return base
	}
	s := f.TurbulenceScale
	gust := w.noise.Eval4(x.X*s, x.Y*s, x.Z*s, t*f.TurbulenceFrequency)
	return r3.Scale(1+f.Turbulence*gust, base)
}

// scaleSub returns (a - b) * s.
func scaleSub(a, b r3.Vec, s float64) r3.Vec {
	return r3.Scale(s, r3.Sub(a, b))
}

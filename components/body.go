package components

import (
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/drape/config"
)

// Surface is the triangulated outer layer of a cloth, exposed to the air.
type Surface struct {
	Triangles [][3]int // absolute particle indices
	UVs       []r2.Vec // pattern-space coordinates, relative to the cloth range
}

// Aero holds aerodynamic coefficients of a surface.
type Aero struct {
	Drag float64
	Lift float64
}

// AeroFromConfig returns the aerodynamic coefficients from the force config.
func AeroFromConfig(cfg *config.ForcesConfig) Aero {
	return Aero{
		Drag: cfg.Drag,
		Lift: cfg.Lift,
	}
}

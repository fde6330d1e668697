// Package components defines ECS components for cloth objects.
package components

import (
	"github.com/pthm-cable/drape/constraints"
	"github.com/pthm-cable/drape/particles"
)

// Cloth identifies a cloth object and the particles it owns.
// Layers are stored back to back, LayerSize particles each.
type Cloth struct {
	Name      string
	Range     particles.Range
	Layers    int
	LayerSize int
	Cols      int
	Rows      int
	// Masses are the per-particle masses relative to Range, pins included.
	Masses []float64
}

// Layer returns the particle range of layer l.
func (c *Cloth) Layer(l int) particles.Range {
	return particles.Range{Offset: c.Range.Offset + l*c.LayerSize, Count: c.LayerSize}
}

// Role identifies what a constraint container does for its cloth, which
// decides the config section its properties come from.
type Role uint8

const (
	RoleStretch        Role = iota // in-plane springs
	RoleShear                      // axial springs across bending elements
	RoleBending                    // dihedral bending
	RoleBendingSprings             // springs across bending elements
	RoleLayerTies                  // embedded springs between layers
	RoleVolume                     // thickness volume
)

// String returns the display name for a Role.
func (r Role) String() string {
	names := RoleNames()
	if int(r) < len(names) {
		return names[r]
	}
	return "unknown"
}

// RoleNames returns the display names for all roles.
// The order matches the Role constants.
func RoleNames() []string {
	return []string{"stretch", "shear", "bending", "bending_springs", "layer_ties", "volume"}
}

// SolverEntry is one constraint container of a cloth.
type SolverEntry struct {
	Role   Role
	Solver constraints.Solver
}

// Solvers holds the constraint containers of a cloth in projection order.
type Solvers struct {
	Entries []SolverEntry
}

// NumConstraints returns the total constraint count.
func (s *Solvers) NumConstraints() int {
	n := 0
	for _, e := range s.Entries {
		n += e.Solver.NumConstraints()
	}
	return n
}

// NumColors returns the total color count.
func (s *Solvers) NumColors() int {
	n := 0
	for _, e := range s.Entries {
		if cs := e.Solver.ColorStart(); len(cs) > 0 {
			n += len(cs) - 1
		}
	}
	return n
}

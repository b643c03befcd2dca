// Package kernel defines the indexed triangle mesh consumed by the mesh
// queries, and an abstract solid-modeling kernel that can produce such
// meshes. Implementations (sdfx) provide primitives and boolean operations
// behind the Kernel interface.
package kernel

import "github.com/deadsy/sdfx/sdf"

// Solid is an opaque handle to a geometry kernel solid.
type Solid interface {
	// BoundingBox returns the axis-aligned bounding box.
	BoundingBox() sdf.Box3
}

// Kernel is the abstract geometry kernel interface.
type Kernel interface {
	// Primitives
	Box(x, y, z float64) (Solid, error)
	Cylinder(height, radius float64) (Solid, error)
	Sphere(radius float64) (Solid, error)

	// Boolean operations
	Union(a, b Solid) Solid
	Difference(a, b Solid) Solid

	// Transforms
	Translate(s Solid, x, y, z float64) Solid

	// Mesh output. The mesh has duplicate vertices merged.
	ToMesh(s Solid) (*Mesh, error)
}

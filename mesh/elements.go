package mesh

// ElementType represents the finite element kinds found in CalculiX result
// files
type ElementType int

const (
	Unknown ElementType = iota
	// 1D elements
	Line
	Line3 // 3-node line (quadratic)
	// 2D elements
	Triangle
	Triangle6 // 6-node triangle (quadratic)
	Quad
	Quad8 // 8-node quad (quadratic)
	// 3D elements
	Tet
	Tet10 // 10-node tetrahedron (quadratic)
	Hex
	Hex20 // 20-node hexahedron (quadratic)
	Prism
	Prism15 // 15-node prism (pentahedron)
)

// VTK cell type identifiers, used as the kind tag of a connectivity block
const (
	VTKLine                = 3
	VTKTriangle            = 5
	VTKQuad                = 9
	VTKTetra               = 10
	VTKHexahedron          = 12
	VTKWedge               = 13
	VTKQuadraticEdge       = 21
	VTKQuadraticTriangle   = 22
	VTKQuadraticQuad       = 23
	VTKQuadraticTetra      = 24
	VTKQuadraticHexahedron = 25
	VTKQuadraticWedge      = 26
)

// AllElementTypes lists every supported kind in enum order
var AllElementTypes = []ElementType{
	Line, Line3, Triangle, Triangle6, Quad, Quad8,
	Tet, Tet10, Hex, Hex20, Prism, Prism15,
}

// String representation of element types
func (e ElementType) String() string {
	names := []string{
		"Unknown",
		"Line", "Line3",
		"Triangle", "Triangle6", "Quad", "Quad8",
		"Tet", "Tet10", "Hex", "Hex20", "Prism", "Prism15",
	}
	if e >= 0 && int(e) < len(names) {
		return names[e]
	}
	return "Invalid"
}

// ParseElementType is the inverse of String
func ParseElementType(name string) ElementType {
	for _, e := range AllElementTypes {
		if e.String() == name {
			return e
		}
	}
	return Unknown
}

// GetDimension returns the spatial dimension of the element
func (e ElementType) GetDimension() int {
	switch e {
	case Line, Line3:
		return 1
	case Triangle, Triangle6, Quad, Quad8:
		return 2
	case Tet, Tet10, Hex, Hex20, Prism, Prism15:
		return 3
	default:
		return -1
	}
}

// GetNumNodes returns the number of nodes for each element type
func (e ElementType) GetNumNodes() int {
	switch e {
	case Line:
		return 2
	case Line3:
		return 3
	case Triangle:
		return 3
	case Triangle6:
		return 6
	case Quad:
		return 4
	case Quad8:
		return 8
	case Tet:
		return 4
	case Tet10:
		return 10
	case Hex:
		return 8
	case Hex20:
		return 20
	case Prism:
		return 6
	case Prism15:
		return 15
	default:
		return 0
	}
}

// VTKCellType returns the VTK cell type id, or 0 for Unknown
func (e ElementType) VTKCellType() int {
	switch e {
	case Line:
		return VTKLine
	case Line3:
		return VTKQuadraticEdge
	case Triangle:
		return VTKTriangle
	case Triangle6:
		return VTKQuadraticTriangle
	case Quad:
		return VTKQuad
	case Quad8:
		return VTKQuadraticQuad
	case Tet:
		return VTKTetra
	case Tet10:
		return VTKQuadraticTetra
	case Hex:
		return VTKHexahedron
	case Hex20:
		return VTKQuadraticHexahedron
	case Prism:
		return VTKWedge
	case Prism15:
		return VTKQuadraticWedge
	default:
		return 0
	}
}

// IsQuadratic reports whether the element carries mid-edge nodes
func (e ElementType) IsQuadratic() bool {
	switch e {
	case Line3, Triangle6, Quad8, Tet10, Hex20, Prism15:
		return true
	}
	return false
}

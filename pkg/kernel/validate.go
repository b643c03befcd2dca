package kernel

import "fmt"

// Severity classifies a validation finding.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return "unknown"
	}
}

// ValidationError is a blocking problem with a mesh.
type ValidationError struct {
	Code    string
	Message string
	Face    int // -1 when not face specific
}

func (e ValidationError) Error() string {
	if e.Face >= 0 {
		return fmt.Sprintf("%s: %s (face %d)", e.Code, e.Message, e.Face)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ValidationWarning is an advisory finding. Queries still work but results
// around the reported feature may be unreliable.
type ValidationWarning struct {
	Code    string
	Message string
	Face    int
	Vertex  int
}

// ValidationResult collects errors and warnings separately.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// OK reports whether there are no blocking errors.
func (r ValidationResult) OK() bool {
	return len(r.Errors) == 0
}

// Validate checks face indices, degenerate faces and unreferenced vertices.
func (m *Mesh) Validate() ValidationResult {
	var r ValidationResult

	used := make([]bool, len(m.V))
	for i, f := range m.F {
		valid := true
		for _, vi := range f {
			if vi < 0 || vi >= len(m.V) {
				r.Errors = append(r.Errors, ValidationError{
					Code:    "FACE_INDEX",
					Message: fmt.Sprintf("vertex index %d out of range [0,%d)", vi, len(m.V)),
					Face:    i,
				})
				valid = false
				continue
			}
			used[vi] = true
		}
		if !valid {
			continue
		}

		switch {
		case f[0] == f[1] || f[1] == f[2] || f[0] == f[2]:
			r.Warnings = append(r.Warnings, ValidationWarning{
				Code:    "DEGENERATE_FACE",
				Message: "face repeats a vertex",
				Face:    i,
				Vertex:  -1,
			})
		case m.FaceNormal(i).Length() == 0:
			r.Warnings = append(r.Warnings, ValidationWarning{
				Code:    "ZERO_AREA_FACE",
				Message: "face has zero area",
				Face:    i,
				Vertex:  -1,
			})
		}
	}

	for vi, ok := range used {
		if !ok {
			r.Warnings = append(r.Warnings, ValidationWarning{
				Code:    "UNREFERENCED_VERTEX",
				Message: "vertex is not used by any face",
				Face:    -1,
				Vertex:  vi,
			})
		}
	}
	return r
}

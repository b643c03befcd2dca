package engine

import (
	"fmt"
	"math"
	"strings"

	zygo "github.com/glycerine/zygomys/zygo"

	"github.com/chazu/slasupport/pkg/spatial"
)

// ---------------------------------------------------------------------------
// Source preprocessing
// ---------------------------------------------------------------------------

// preprocessSource transforms predicate source before passing it to zygomys.
// It performs three transformations:
//
//  1. Keyword conversion: :keyword -> "__kw_keyword" (string literal)
//     Keywords select sides and axes in builtins such as (coord :a :x).
//
//  2. Kebab-case to underscore: a-x -> a_x
//     zygomys does not allow hyphens in identifiers (it interprets them
//     as the subtraction operator).
//
//  3. ; line comments become // comments.
//
// All transformations respect string literal boundaries and line comments.
func preprocessSource(source string) string {
	result := make([]byte, 0, len(source)+len(source)/4)
	b := []byte(source)
	i := 0
	for i < len(b) {
		// Skip double-quoted string literals.
		if b[i] == '"' {
			result = append(result, b[i])
			i++
			for i < len(b) && b[i] != '"' {
				if b[i] == '\\' && i+1 < len(b) {
					result = append(result, b[i], b[i+1])
					i += 2
					continue
				}
				result = append(result, b[i])
				i++
			}
			if i < len(b) {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// Skip backtick-quoted string literals.
		if b[i] == '`' {
			result = append(result, b[i])
			i++
			for i < len(b) && b[i] != '`' {
				result = append(result, b[i])
				i++
			}
			if i < len(b) {
				result = append(result, b[i])
				i++
			}
			continue
		}
		if b[i] == ';' {
			result = append(result, '/', '/')
			i++
			for i < len(b) && b[i] == ';' {
				i++
			}
			for i < len(b) && b[i] != '\n' {
				result = append(result, b[i])
				i++
			}
			continue
		}
		if b[i] == ':' && i+1 < len(b) {
			// Preserve := (assignment operator).
			if b[i+1] == '=' {
				result = append(result, b[i], b[i+1])
				i += 2
				continue
			}
			if isLetter(b[i+1]) {
				j := i + 1
				for j < len(b) && isKWChar(b[j]) {
					j++
				}
				result = append(result, '"')
				result = append(result, kwPrefix...)
				result = append(result, b[i+1:j]...)
				result = append(result, '"')
				i = j
				continue
			}
		}
		// Only a hyphen between identifier characters is rewritten; the
		// minus operator stands alone.
		if b[i] == '-' && i > 0 && i+1 < len(b) &&
			isIdentChar(b[i-1]) && isLetter(b[i+1]) {
			result = append(result, '_')
			i++
			continue
		}
		result = append(result, b[i])
		i++
	}
	return string(result)
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isKWChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '-' || c == '_'
}

func isIdentChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '_'
}

// ---------------------------------------------------------------------------
// Value extraction helpers
// ---------------------------------------------------------------------------

// kwPrefix is the marker prepended to keyword names by preprocessSource.
const kwPrefix = "__kw_"

// toFloat64 extracts a float64 from a Sexp (SexpInt or SexpFloat).
func toFloat64(s zygo.Sexp) (float64, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return float64(v.Val), nil
	case *zygo.SexpFloat:
		return v.Val, nil
	}
	return 0, fmt.Errorf("expected number, got %T (%s)", s, s.SexpString(nil))
}

// toKeywordString extracts a keyword name or plain string from a Sexp.
// Handles both preprocessed keywords (__kw_z) and plain strings ("z").
func toKeywordString(s zygo.Sexp) (string, error) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", fmt.Errorf("expected keyword or string, got %T (%s)", s, s.SexpString(nil))
	}
	return strings.TrimPrefix(str.S, kwPrefix), nil
}

// toSide picks a or b from the pair by keyword.
func toSide(s zygo.Sexp, p pair) (spatial.Element, error) {
	name, err := toKeywordString(s)
	if err != nil {
		return spatial.Element{}, fmt.Errorf("expected side keyword (:a, :b): %w", err)
	}
	switch name {
	case "a":
		return p.a, nil
	case "b":
		return p.b, nil
	}
	return spatial.Element{}, fmt.Errorf("invalid side %q, expected a or b", name)
}

// toAxis selects one coordinate of an element by keyword.
func toAxis(s zygo.Sexp, e spatial.Element) (float64, error) {
	name, err := toKeywordString(s)
	if err != nil {
		return 0, fmt.Errorf("expected axis keyword (:x, :y, :z): %w", err)
	}
	switch name {
	case "x":
		return e.Point.X, nil
	case "y":
		return e.Point.Y, nil
	case "z":
		return e.Point.Z, nil
	}
	return 0, fmt.Errorf("invalid axis %q, expected x, y, or z", name)
}

// ---------------------------------------------------------------------------
// Builtin registration
// ---------------------------------------------------------------------------

// registerBuiltins installs the pair accessors into a zygomys environment.
// cur returns the pair under evaluation; builtins read it on every call.
//
// Source code must be preprocessed with preprocessSource() before evaluation so
// that kebab-case names and :keyword tokens resolve.
func registerBuiltins(env *zygo.Zlisp, cur func() pair) {
	scalar := func(name string, fn func(p pair) float64) {
		env.AddFunction(name, func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
			if len(args) != 0 {
				return zygo.SexpNull, fmt.Errorf("%s: takes no arguments, got %d", name, len(args))
			}
			return &zygo.SexpFloat{Val: fn(cur())}, nil
		})
	}
	index := func(name string, fn func(p pair) uint32) {
		env.AddFunction(name, func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
			if len(args) != 0 {
				return zygo.SexpNull, fmt.Errorf("%s: takes no arguments, got %d", name, len(args))
			}
			return &zygo.SexpInt{Val: int64(fn(cur()))}, nil
		})
	}

	// (dist) (dist2) (hdist)
	scalar("dist", func(p pair) float64 { return p.a.Distance(p.b) })
	scalar("dist2", func(p pair) float64 {
		d := p.b.Point.Sub(p.a.Point)
		return d.Dot(d)
	})
	scalar("hdist", func(p pair) float64 {
		return math.Hypot(p.b.Point.X-p.a.Point.X, p.b.Point.Y-p.a.Point.Y)
	})

	// (dx) (dy) (dz): b minus a
	scalar("dx", func(p pair) float64 { return p.b.Point.X - p.a.Point.X })
	scalar("dy", func(p pair) float64 { return p.b.Point.Y - p.a.Point.Y })
	scalar("dz", func(p pair) float64 { return p.b.Point.Z - p.a.Point.Z })

	// (a-x) ... (b-z), (a-idx) (b-idx)
	scalar("a_x", func(p pair) float64 { return p.a.Point.X })
	scalar("a_y", func(p pair) float64 { return p.a.Point.Y })
	scalar("a_z", func(p pair) float64 { return p.a.Point.Z })
	scalar("b_x", func(p pair) float64 { return p.b.Point.X })
	scalar("b_y", func(p pair) float64 { return p.b.Point.Y })
	scalar("b_z", func(p pair) float64 { return p.b.Point.Z })
	index("a_idx", func(p pair) uint32 { return p.a.Index })
	index("b_idx", func(p pair) uint32 { return p.b.Index })

	// -----------------------------------------------------------------------
	// (coord :a :z)
	// -----------------------------------------------------------------------
	env.AddFunction("coord", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 2 {
			return zygo.SexpNull, fmt.Errorf("coord: expected 2 arguments (side, axis), got %d", len(args))
		}
		e, err := toSide(args[0], cur())
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("coord: %w", err)
		}
		v, err := toAxis(args[1], e)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("coord: %w", err)
		}
		return &zygo.SexpFloat{Val: v}, nil
	})

	// -----------------------------------------------------------------------
	// (absf x)
	// -----------------------------------------------------------------------
	env.AddFunction("absf", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 1 {
			return zygo.SexpNull, fmt.Errorf("absf: expected 1 argument, got %d", len(args))
		}
		f, err := toFloat64(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("absf: %w", err)
		}
		return &zygo.SexpFloat{Val: math.Abs(f)}, nil
	})
}

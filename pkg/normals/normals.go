// Package normals resolves surface normals for support points.
//
// A support point whose closest mesh location falls on a vertex or edge
// shared by several faces has no single "hit triangle" normal. For those
// points every face around the feature contributes its unit normal and the
// distinct contributions are averaged.
package normals

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sort"

	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"golang.org/x/sync/errgroup"

	"github.com/chazu/slasupport/pkg/kernel"
	"github.com/chazu/slasupport/pkg/logging"
	"github.com/chazu/slasupport/pkg/meshquery"
)

// ErrAborted is returned when a batch is cancelled. The cancellation cause
// is wrapped alongside it.
var ErrAborted = errors.New("normals: operation aborted")

// dupTol is the per-coordinate tolerance under which two unit normals count
// as the same.
const dupTol = 1e-3

// PointFunc maps a payload index to its position.
type PointFunc func(idx uint32) v3.Vec

// Result is the resolution of one query point.
type Result struct {
	Normal v3.Vec
	Class  Degeneracy
	Face   int  // face owning the closest point
	OK     bool // false when the point could not be placed on any face
}

type options struct {
	logger      *logging.Logger
	concurrency int
	abort       func() error
}

// Option configures a resolution batch.
type Option func(*options)

// WithLogger sets the logger. A nil logger disables logging.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithConcurrency caps the number of points resolved in parallel.
// Values below 1 select runtime.GOMAXPROCS(0).
func WithConcurrency(n int) Option {
	return func(o *options) {
		o.concurrency = n
	}
}

// WithAbortCheck installs a cancellation check called at the start of every
// point and before every face of a neighbor scan. A non-nil return aborts
// the batch.
func WithAbortCheck(fn func() error) Option {
	return func(o *options) {
		o.abort = fn
	}
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.concurrency < 1 {
		o.concurrency = runtime.GOMAXPROCS(0)
	}
	o.logger = logging.OrNoop(o.logger).WithComponent("normals")
	return o
}

// Resolve returns one normal per entry of indices, in the same order.
// Points that cannot be associated with a face get the zero vector.
// An empty mesh or empty index set yields an empty result.
func Resolve(ctx context.Context, tree *meshquery.Tree, pointFn PointFunc, eps float64, indices []uint32, opts ...Option) ([]v3.Vec, error) {
	res, err := ResolveDetailed(ctx, tree, pointFn, eps, indices, opts...)
	if err != nil || res == nil {
		return nil, err
	}
	out := make([]v3.Vec, len(res))
	for i, r := range res {
		out[i] = r.Normal
	}
	return out, nil
}

// ResolveDetailed is Resolve returning the classification of every point.
func ResolveDetailed(ctx context.Context, tree *meshquery.Tree, pointFn PointFunc, eps float64, indices []uint32, opts ...Option) ([]Result, error) {
	if len(indices) == 0 || tree == nil || tree.Mesh().IsEmpty() {
		return nil, nil
	}
	o := buildOptions(opts)
	r := &resolver{tree: tree, mesh: tree.Mesh(), pointFn: pointFn, eps: eps, abort: o.abort}

	out := make([]Result, len(indices))
	var err error
	if len(indices) == 1 {
		out[0], err = r.resolve(ctx, indices[0])
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(o.concurrency)
		for i, idx := range indices {
			g.Go(func() error {
				res, err := r.resolve(gctx, idx)
				out[i] = res
				return err
			})
		}
		err = g.Wait()
	}

	skipped := 0
	for _, res := range out {
		if !res.OK {
			skipped++
		}
	}
	o.logger.LogBatch(ctx, "normal resolution", len(indices), skipped, err)
	if err != nil {
		return nil, err
	}
	return out, nil
}

type resolver struct {
	tree    *meshquery.Tree
	mesh    *kernel.Mesh
	pointFn PointFunc
	eps     float64
	abort   func() error
}

// check runs the cooperative cancellation checks.
func (r *resolver) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrAborted, err)
	}
	if r.abort != nil {
		if err := r.abort(); err != nil {
			return fmt.Errorf("%w: %w", ErrAborted, err)
		}
	}
	return nil
}

func (r *resolver) resolve(ctx context.Context, idx uint32) (Result, error) {
	if err := r.check(ctx); err != nil {
		return Result{}, err
	}

	hit := r.tree.SquaredDistance(r.pointFn(idx))
	if hit.Face == meshquery.NoFace {
		return Result{Face: meshquery.NoFace}, nil
	}

	face := r.mesh.F[hit.Face]
	tri := r.mesh.Triangle(hit.Face)
	class := Classify(hit.Point, tri, face, r.eps)
	res := Result{Class: class, Face: hit.Face, OK: true}

	if class.Kind == FaceInterior {
		res.Normal = FaceNormal(tri)
		return res, nil
	}

	neigh, err := r.neighbors(ctx, class)
	if err != nil {
		return Result{}, err
	}
	res.Normal = r.average(neigh, tri)
	return res, nil
}

// average is the mean of the distinct unit normals of faces. With no faces
// it falls back to the unnormalized normal of hit.
func (r *resolver) average(faces []int, hit sdf.Triangle3) v3.Vec {
	if len(faces) == 0 {
		return FaceNormal(hit)
	}
	normals := make([]v3.Vec, len(faces))
	for i, f := range faces {
		normals[i] = FaceNormal(r.mesh.Triangle(f)).Normalize()
	}
	return mean(dedupe(normals))
}

// neighbors scans every face for those around the degenerate feature.
func (r *resolver) neighbors(ctx context.Context, class Degeneracy) ([]int, error) {
	has := func(f [3]int, v int) bool {
		return f[0] == v || f[1] == v || f[2] == v
	}

	var out []int
	for i, f := range r.mesh.F {
		if err := r.check(ctx); err != nil {
			return nil, err
		}
		switch class.Kind {
		case OnVertex:
			if has(f, class.A) {
				out = append(out, i)
			}
		case OnEdge:
			if has(f, class.A) && has(f, class.B) {
				out = append(out, i)
			}
		}
	}
	return out, nil
}

// dedupe sorts normals by coordinate sum and collapses runs of
// near-equal neighbors. Near-duplicates that do not end up adjacent after
// sorting are kept. Equal sums keep face order.
func dedupe(ns []v3.Vec) []v3.Vec {
	sort.SliceStable(ns, func(i, j int) bool {
		return sum(ns[i]) < sum(ns[j])
	})
	out := ns[:0]
	for _, n := range ns {
		if len(out) > 0 && nearlyEqual(out[len(out)-1], n) {
			continue
		}
		out = append(out, n)
	}
	return out
}

func sum(v v3.Vec) float64 {
	return v.X + v.Y + v.Z
}

func nearlyEqual(a, b v3.Vec) bool {
	return math.Abs(a.X-b.X) < dupTol &&
		math.Abs(a.Y-b.Y) < dupTol &&
		math.Abs(a.Z-b.Z) < dupTol
}

func mean(ns []v3.Vec) v3.Vec {
	var acc v3.Vec
	for _, n := range ns {
		acc = acc.Add(n)
	}
	return acc.DivScalar(float64(len(ns)))
}

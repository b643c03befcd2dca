// Package engine evaluates user supplied Lisp predicates over pairs of
// support points. Scripts run in a sandboxed zygomys environment with no
// filesystem or syscall access, and a compiled predicate can drive
// cluster.ByPredicate directly.
package engine

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	zygo "github.com/glycerine/zygomys/zygo"

	"github.com/chazu/slasupport/pkg/cluster"
	"github.com/chazu/slasupport/pkg/logging"
	"github.com/chazu/slasupport/pkg/spatial"
)

// EvalError represents a non-fatal error in user code, such as a parse
// error or a runtime error raised by the script.
type EvalError struct {
	Line    int
	Col     int
	Message string
}

func (e EvalError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	}
	return e.Message
}

var (
	// ErrTimeout is returned when one evaluation exceeds the engine timeout.
	// The predicate is unusable afterwards.
	ErrTimeout = errors.New("engine: evaluation timed out")
	// ErrClosed is returned by Eval after Close.
	ErrClosed = errors.New("engine: predicate closed")
)

const (
	// DefaultTimeout bounds a single evaluation.
	DefaultTimeout = 5 * time.Second
	// DefaultRecycle is the number of evaluations after which the sandbox
	// is rebuilt. Every call appends to the interpreter's main program.
	DefaultRecycle = 4096

	predicateName = "pairpredicate"
)

// Engine compiles pair predicates. It holds configuration only and is safe
// for concurrent use.
type Engine struct {
	timeout time.Duration
	recycle int
	logger  *logging.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithTimeout sets the per-evaluation limit. Zero or less disables it.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.timeout = d
	}
}

// WithRecycle sets how many evaluations a sandbox serves before it is
// rebuilt. Values below 1 select DefaultRecycle.
func WithRecycle(n int) Option {
	return func(e *Engine) {
		e.recycle = n
	}
}

// WithLogger sets the logger. A nil logger disables logging.
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// NewEngine creates a new Engine instance.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{timeout: DefaultTimeout, recycle: DefaultRecycle}
	for _, opt := range opts {
		opt(e)
	}
	if e.recycle < 1 {
		e.recycle = DefaultRecycle
	}
	e.logger = logging.OrNoop(e.logger).WithComponent("engine")
	return e
}

// samplePair is the pair a fresh predicate is evaluated against once so
// that unbound symbols and non-boolean results surface at compile time.
var samplePair = pair{
	a: spatial.Element{Index: 0},
	b: spatial.Element{Index: 1},
}

// CompilePredicate turns Lisp source into a Predicate. The source is the
// body of a function of no arguments whose last form must yield a boolean;
// the pair under test is reached through builtins such as (dist).
//
// Return semantics:
//   - On success: returns predicate + nil errors + nil error
//   - On parse/eval failure: returns nil + eval errors + nil error
//   - On fatal failure (timeout, panic): returns nil + nil + error
func (e *Engine) CompilePredicate(source string) (*Predicate, []EvalError, error) {
	src := preprocessSource(source)
	if strings.TrimSpace(src) == "" {
		return nil, []EvalError{{Message: "empty predicate"}}, nil
	}

	p := &Predicate{
		source:  src,
		timeout: e.timeout,
		recycle: e.recycle,
		logger:  e.logger,
	}
	if errs := p.load(); len(errs) > 0 {
		return nil, errs, nil
	}

	p.cur = samplePair
	_, err := runWithTimeout(p.timeout, evalIn(p.env))
	if err != nil {
		var ee EvalError
		if errors.As(err, &ee) {
			p.reset()
			return nil, []EvalError{ee}, nil
		}
		if !errors.Is(err, ErrTimeout) {
			p.reset()
		}
		return nil, nil, fmt.Errorf("engine: compile predicate: %w", err)
	}
	p.evals = 0

	e.logger.Debug("predicate compiled", "bytes", len(source))
	return p, nil, nil
}

type pair struct {
	a, b spatial.Element
}

// Predicate is a compiled pair predicate. Evaluations are serialized.
type Predicate struct {
	mu      sync.Mutex
	source  string
	env     *zygo.Zlisp
	cur     pair
	evals   int
	timeout time.Duration
	recycle int
	logger  *logging.Logger
	broken  error
	lastErr error
}

// load builds a fresh sandbox and defines the predicate function in it.
func (p *Predicate) load() []EvalError {
	env := zygo.NewZlispSandbox()
	registerBuiltins(env, func() pair { return p.cur })

	// The prefix shares the first line so reported line numbers match the
	// user's source.
	wrapped := "(defn " + predicateName + " [] " + p.source + "\n)"
	if err := env.LoadString(wrapped); err != nil {
		env.Stop()
		return parseZygomysError(err)
	}
	if _, err := env.Run(); err != nil {
		env.Stop()
		return parseZygomysError(err)
	}
	p.env = env
	p.evals = 0
	return nil
}

func (p *Predicate) reset() {
	if p.env != nil {
		p.env.Stop()
		p.env = nil
	}
}

// evalIn returns a function that runs the predicate once in env against the
// current pair. env is bound up front: after a timeout Eval drops p.env
// while the abandoned evaluation may still be running.
func evalIn(env *zygo.Zlisp) func() (bool, error) {
	return func() (bool, error) {
		return evalPredicate(env)
	}
}

func evalPredicate(env *zygo.Zlisp) (bool, error) {
	if err := env.LoadString("(" + predicateName + ")"); err != nil {
		return false, parseZygomysError(err)[0]
	}
	v, err := env.Run()
	if err != nil {
		return false, parseZygomysError(err)[0]
	}
	b, ok := v.(*zygo.SexpBool)
	if !ok {
		return false, EvalError{Message: fmt.Sprintf("predicate returned %s, expected a boolean", v.SexpString(nil))}
	}
	return b.Val, nil
}

// Eval reports whether the predicate holds for the pair (a, b). Script
// errors are returned as EvalError values; the sandbox is rebuilt before
// the next call. After a timeout every call returns ErrTimeout.
func (p *Predicate) Eval(a, b spatial.Element) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.broken != nil {
		return false, p.broken
	}
	if p.env == nil || p.evals >= p.recycle {
		p.reset()
		if errs := p.load(); len(errs) > 0 {
			return false, errs[0]
		}
	}

	p.cur = pair{a: a, b: b}
	p.evals++
	ok, err := runWithTimeout(p.timeout, evalIn(p.env))
	if err != nil {
		if errors.Is(err, ErrTimeout) {
			// The evaluating goroutine still owns the sandbox.
			p.env = nil
			p.broken = err
		} else {
			p.reset()
		}
		return false, err
	}
	return ok, nil
}

// Func adapts the predicate for cluster.ByPredicate. Evaluation errors count
// as false; the most recent one is available from Err.
func (p *Predicate) Func() cluster.Predicate {
	return func(a, b spatial.Element) bool {
		ok, err := p.Eval(a, b)
		if err != nil {
			p.mu.Lock()
			first := p.lastErr == nil
			p.lastErr = err
			p.mu.Unlock()
			if first {
				p.logger.Warn("predicate evaluation failed", "a", a.Index, "b", b.Index, "error", err)
			}
			return false
		}
		return ok
	}
}

// Err returns the last error swallowed by a function returned from Func.
func (p *Predicate) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

// Close releases the sandbox. It is safe to call more than once.
func (p *Predicate) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if errors.Is(p.broken, ErrTimeout) {
		return
	}
	p.reset()
	p.broken = ErrClosed
}

// linePattern matches zygomys error messages that include "Error on line N: ..."
var linePattern = regexp.MustCompile(`(?i)(?:error )?on line (\d+):\s*(.*)`)

// linePatternShort matches simpler "line N: ..." patterns.
var linePatternShort = regexp.MustCompile(`(?i)^line (\d+):\s*(.*)`)

// parseZygomysError converts a zygomys error into one or more EvalError values.
// It attempts to extract line number information from the error message.
func parseZygomysError(err error) []EvalError {
	msg := err.Error()

	for _, re := range []*regexp.Regexp{linePattern, linePatternShort} {
		if m := re.FindStringSubmatch(msg); m != nil {
			line, _ := strconv.Atoi(m[1])
			return []EvalError{{
				Line:    line,
				Message: strings.TrimSpace(m[2]),
			}}
		}
	}

	// Fallback: no line info available.
	return []EvalError{{Message: strings.TrimSpace(msg)}}
}

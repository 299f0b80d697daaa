package lm

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/calib/logging"
)

// State is the solver state after a step.
type State int

const (
	// Iterating means the step completed and the solve continues.
	Iterating State = iota
	// Converged means the residual norm changed by less than the tolerance.
	Converged
	// MaxIterExceeded means the iteration budget ran out before convergence.
	MaxIterExceeded
	// SingularRetry means the damped normal equations could not be solved and the damping was
	// increased without moving.
	SingularRetry
)

func (s State) String() string {
	switch s {
	case Iterating:
		return "iterating"
	case Converged:
		return "converged"
	case MaxIterExceeded:
		return "max_iter_exceeded"
	case SingularRetry:
		return "singular_retry"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalText renders the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name written by MarshalText.
func (s *State) UnmarshalText(text []byte) error {
	for _, state := range []State{Iterating, Converged, MaxIterExceeded, SingularRetry} {
		if string(text) == state.String() {
			*s = state
			return nil
		}
	}
	return errors.Errorf("unknown solver state %q", text)
}

// Step records one pass of the solver loop. CandidateNorm is zero when no candidate was evaluated.
// CandidateError holds the reason a candidate's residual could not be evaluated.
type Step struct {
	Iteration      int     `json:"iteration"`
	State          State   `json:"state"`
	Lambda         float64 `json:"lambda"` // damping the normal equations were built with
	ResidualNorm   float64 `json:"residual_norm"`
	CandidateNorm  float64 `json:"candidate_norm"`
	CandidateError string  `json:"candidate_error,omitempty"`
	Accepted       bool    `json:"accepted"`
}

// Result is the outcome of a solve.
type Result struct {
	X            *mat.VecDense
	Iterations   int
	ResidualNorm float64
	Converged    bool
	State        State
	Lambda       float64
	Steps        []Step
}

// Solver runs Levenberg-Marquardt with a fixed configuration. A Solver holds no state between
// calls to Solve and may be shared.
type Solver struct {
	cfg    Config
	logger logging.Logger
}

// NewSolver validates cfg and returns a solver that logs each step at debug level.
func NewSolver(cfg Config, logger logging.Logger) (*Solver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewBlankLogger("lm")
	}
	return &Solver{cfg: cfg, logger: logger}, nil
}

// Solve is the plain entrypoint: it minimizes ‖r(x)‖ from x0 and returns only the final parameters.
func Solve(problem Problem, x0 mat.Vector, maxIter int, tol, lambda0, gamma float64) (*mat.VecDense, error) {
	solver, err := NewSolver(Config{
		MaxIterations:  maxIter,
		Tolerance:      tol,
		InitialDamping: lambda0,
		DampingGrowth:  gamma,
	}, nil)
	if err != nil {
		return nil, err
	}
	result, err := solver.Solve(problem, x0)
	if err != nil {
		return nil, err
	}
	return result.X, nil
}

// Solve minimizes ‖r(x)‖ starting at x0. Each iteration solves (JᵀJ + λI)·Δx = -Jᵀr. A singular
// system grows λ by the damping growth factor and retries. Otherwise the candidate x+Δx is
// evaluated: if its residual norm is within the tolerance of the current one the solve stops, if
// it is smaller the candidate is taken and λ shrinks, and if not λ grows. A candidate whose
// residual cannot be evaluated is rejected. x0 is not modified.
func (s *Solver) Solve(problem Problem, x0 mat.Vector) (*Result, error) {
	if x0 == nil || x0.Len() == 0 {
		return nil, errors.New("initial parameters are empty")
	}
	x := mat.VecDenseCopyOf(x0)
	lambda := s.cfg.InitialDamping

	r, err := problem.Residual(x)
	if err != nil {
		return nil, errors.Wrap(err, "error evaluating residual at initial parameters")
	}
	norm := vecNorm(r)
	if math.IsNaN(norm) || math.IsInf(norm, 0) {
		return nil, errors.Errorf("residual at initial parameters is not finite (%v)", norm)
	}

	result := &Result{State: Iterating}
	for iter := 1; iter <= s.cfg.MaxIterations && result.State == Iterating; iter++ {
		result.Iterations = iter
		step := Step{Iteration: iter, State: Iterating, Lambda: lambda, ResidualNorm: norm}

		jac, err := problem.Jacobian(x)
		if err != nil {
			return nil, errors.Wrapf(err, "error evaluating jacobian at iteration %d", iter)
		}
		jr, jc := jac.Dims()
		if jr != r.Len() {
			return nil, errors.Errorf("jacobian has %d rows but residual has %d entries", jr, r.Len())
		}
		if jc != x.Len() {
			return nil, errors.Errorf("jacobian has %d columns but there are %d parameters", jc, x.Len())
		}

		dx, ok := solveDamped(jac, r, lambda)
		if !ok {
			step.State = SingularRetry
			lambda *= s.cfg.DampingGrowth
			s.record(result, step)
			continue
		}

		candidate := mat.NewVecDense(x.Len(), nil)
		candidate.AddVec(x, dx)
		candidateResidual, err := problem.Residual(candidate)
		if err != nil {
			step.CandidateError = err.Error()
			lambda *= s.cfg.DampingGrowth
			s.record(result, step)
			continue
		}
		candidateNorm := vecNorm(candidateResidual)
		step.CandidateNorm = candidateNorm

		improved := candidateNorm < norm
		if s.cfg.StrictAcceptance && improved {
			step.Accepted = true
		}
		switch {
		case math.Abs(norm-candidateNorm) < s.cfg.Tolerance:
			step.State = Converged
			result.State = Converged
		case improved:
			step.Accepted = true
			lambda /= s.cfg.DampingGrowth
		default:
			lambda *= s.cfg.DampingGrowth
		}
		if step.Accepted {
			x, r, norm = candidate, candidateResidual, candidateNorm
		}
		s.record(result, step)
	}

	if result.State != Converged {
		result.State = MaxIterExceeded
	}
	result.X = x
	result.ResidualNorm = norm
	result.Converged = result.State == Converged
	result.Lambda = lambda
	s.logger.Infow("solve finished",
		"state", result.State.String(),
		"iterations", result.Iterations,
		"residual_norm", result.ResidualNorm,
		"lambda", lambda)
	return result, nil
}

func (s *Solver) record(result *Result, step Step) {
	s.logger.Debugw("step",
		"iteration", step.Iteration,
		"state", step.State.String(),
		"lambda", step.Lambda,
		"residual_norm", step.ResidualNorm,
		"candidate_norm", step.CandidateNorm,
		"accepted", step.Accepted)
	if step.CandidateError != "" {
		s.logger.Debugw("candidate rejected", "iteration", step.Iteration, "error", step.CandidateError)
	}
	result.Steps = append(result.Steps, step)
}

// solveDamped solves (JᵀJ + λI)·Δx = -Jᵀr by LU. It reports false when the system is singular or
// ill conditioned enough that the solution is not finite.
func solveDamped(jac *mat.Dense, r *mat.VecDense, lambda float64) (*mat.VecDense, bool) {
	_, n := jac.Dims()
	var a mat.Dense
	a.Mul(jac.T(), jac)
	for i := 0; i < n; i++ {
		a.Set(i, i, a.At(i, i)+lambda)
	}
	var b mat.VecDense
	b.MulVec(jac.T(), r)
	b.ScaleVec(-1, &b)

	var lu mat.LU
	lu.Factorize(&a)
	var dx mat.VecDense
	if err := lu.SolveVecTo(&dx, false, &b); err != nil {
		return nil, false
	}
	if sum := floats.Sum(dx.RawVector().Data); math.IsNaN(sum) || math.IsInf(sum, 0) {
		return nil, false
	}
	return &dx, true
}

func vecNorm(v *mat.VecDense) float64 {
	if v.Len() == 0 {
		return 0
	}
	return mat.Norm(v, 2)
}

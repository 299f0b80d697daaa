package lm

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/calib/logging"
)

// quadraticFit fits y = a·x² + b·x + c to noiseless samples of x² + x + 1.
func quadraticFit() Problem {
	xs := []float64{1, 2, 3, 4, 5}
	return ProblemFuncs{
		ResidualFunc: func(p mat.Vector) (*mat.VecDense, error) {
			r := mat.NewVecDense(len(xs), nil)
			for i, x := range xs {
				y := x*x + x + 1
				r.SetVec(i, p.AtVec(0)*x*x+p.AtVec(1)*x+p.AtVec(2)-y)
			}
			return r, nil
		},
		JacobianFunc: func(p mat.Vector) (*mat.Dense, error) {
			j := mat.NewDense(len(xs), 3, nil)
			for i, x := range xs {
				j.SetRow(i, []float64{x * x, x, 1})
			}
			return j, nil
		},
	}
}

func newTestSolver(t *testing.T, cfg Config) *Solver {
	t.Helper()
	solver, err := NewSolver(cfg, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	return solver
}

func TestSolveQuadraticFit(t *testing.T) {
	t.Run("literal", func(t *testing.T) {
		solver := newTestSolver(t, DefaultConfig())
		result, err := solver.Solve(quadraticFit(), mat.NewVecDense(3, []float64{0, 0, 0}))
		test.That(t, err, test.ShouldBeNil)
		test.That(t, result.Converged, test.ShouldBeTrue)
		test.That(t, result.State, test.ShouldEqual, Converged)
		for i := 0; i < 3; i++ {
			test.That(t, result.X.AtVec(i), test.ShouldAlmostEqual, 1, 1e-8)
		}
		test.That(t, result.Iterations, test.ShouldBeLessThan, 20)
		test.That(t, len(result.Steps), test.ShouldEqual, result.Iterations)
	})

	t.Run("strict", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.StrictAcceptance = true
		solver := newTestSolver(t, cfg)
		result, err := solver.Solve(quadraticFit(), mat.NewVecDense(3, []float64{200, 2, 3}))
		test.That(t, err, test.ShouldBeNil)
		test.That(t, result.Converged, test.ShouldBeTrue)
		for i := 0; i < 3; i++ {
			test.That(t, result.X.AtVec(i), test.ShouldAlmostEqual, 1, 1e-8)
		}
	})
}

func TestSolveDoesNotModifyInitial(t *testing.T) {
	x0 := mat.NewVecDense(3, []float64{0, 0, 0})
	_, err := newTestSolver(t, DefaultConfig()).Solve(quadraticFit(), x0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, x0.RawVector().Data, test.ShouldResemble, []float64{0, 0, 0})
}

func TestConvergingCandidateAcceptance(t *testing.T) {
	x0 := mat.NewVecDense(3, []float64{0, 0, 0})

	literal, err := newTestSolver(t, DefaultConfig()).Solve(quadraticFit(), x0)
	test.That(t, err, test.ShouldBeNil)
	last := literal.Steps[len(literal.Steps)-1]
	test.That(t, last.State, test.ShouldEqual, Converged)
	test.That(t, last.Accepted, test.ShouldBeFalse)
	// The returned norm is that of the last accepted parameters, not the converging candidate.
	test.That(t, literal.ResidualNorm, test.ShouldEqual, last.ResidualNorm)

	cfg := DefaultConfig()
	cfg.StrictAcceptance = true
	strict, err := newTestSolver(t, cfg).Solve(quadraticFit(), x0)
	test.That(t, err, test.ShouldBeNil)
	last = strict.Steps[len(strict.Steps)-1]
	test.That(t, last.State, test.ShouldEqual, Converged)
	if last.CandidateNorm < last.ResidualNorm {
		test.That(t, last.Accepted, test.ShouldBeTrue)
		test.That(t, strict.ResidualNorm, test.ShouldEqual, last.CandidateNorm)
	}
	test.That(t, strict.ResidualNorm, test.ShouldBeLessThanOrEqualTo, literal.ResidualNorm)
}

func TestSolveMaxIterations(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxIterations = 2
	result, err := newTestSolver(t, cfg).Solve(quadraticFit(), mat.NewVecDense(3, []float64{200, 2, 3}))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, result.Converged, test.ShouldBeFalse)
	test.That(t, result.State, test.ShouldEqual, MaxIterExceeded)
	test.That(t, result.Iterations, test.ShouldEqual, 2)
	test.That(t, len(result.Steps), test.ShouldEqual, 2)
	test.That(t, result.ResidualNorm, test.ShouldBeGreaterThan, 0)
}

func TestSolveSingularRetry(t *testing.T) {
	// JᵀJ + λI is diag(3e18 + λ, λ). Its condition number only drops below the LU tolerance of
	// 1e16 once λ reaches 1e3.
	scale := math.Sqrt(3) * 1e9
	problem := ProblemFuncs{
		ResidualFunc: func(x mat.Vector) (*mat.VecDense, error) {
			return mat.NewVecDense(1, []float64{scale * (x.AtVec(0) - 1)}), nil
		},
		JacobianFunc: func(x mat.Vector) (*mat.Dense, error) {
			return mat.NewDense(1, 2, []float64{scale, 0}), nil
		},
	}
	cfg := DefaultConfig()
	cfg.Tolerance = 1e-6
	result, err := newTestSolver(t, cfg).Solve(problem, mat.NewVecDense(2, []float64{2, 0}))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(result.Steps), test.ShouldBeGreaterThan, 7)

	lambda := 1e-3
	for i := 0; i < 6; i++ {
		step := result.Steps[i]
		test.That(t, step.State, test.ShouldEqual, SingularRetry)
		test.That(t, step.Accepted, test.ShouldBeFalse)
		test.That(t, step.CandidateNorm, test.ShouldEqual, 0.)
		test.That(t, step.Lambda, test.ShouldAlmostEqual, lambda, lambda*1e-9)
		lambda *= 10
	}
	test.That(t, result.Steps[6].Accepted, test.ShouldBeTrue)
	test.That(t, result.Steps[6].Lambda, test.ShouldAlmostEqual, 1e3, 1e-6)

	test.That(t, result.Converged, test.ShouldBeTrue)
	test.That(t, result.X.AtVec(0), test.ShouldAlmostEqual, 1, 1e-6)
	test.That(t, result.X.AtVec(1), test.ShouldEqual, 0.)
}

func TestSolveRejectsFailedCandidates(t *testing.T) {
	// The residual cannot be evaluated past 500, so full steps towards 1000 are rejected until
	// the damping shortens them.
	problem := ProblemFuncs{
		ResidualFunc: func(x mat.Vector) (*mat.VecDense, error) {
			if x.AtVec(0) > 500 {
				return nil, errors.New("out of range")
			}
			return mat.NewVecDense(1, []float64{x.AtVec(0) - 1000}), nil
		},
		JacobianFunc: func(x mat.Vector) (*mat.Dense, error) {
			return mat.NewDense(1, 1, []float64{1}), nil
		},
	}
	cfg := DefaultConfig()
	cfg.MaxIterations = 4
	logger, logs := logging.NewObservedTestLogger(t)
	solver, err := NewSolver(cfg, logger)
	test.That(t, err, test.ShouldBeNil)
	result, err := solver.Solve(problem, mat.NewVecDense(1, []float64{0}))
	test.That(t, err, test.ShouldBeNil)
	rejected := logs.FilterMessage("candidate rejected").All()
	test.That(t, len(rejected), test.ShouldEqual, 3)
	test.That(t, rejected[0].ContextMap()["error"], test.ShouldEqual, "out of range")
	test.That(t, len(result.Steps), test.ShouldEqual, 4)
	for i := 0; i < 3; i++ {
		test.That(t, result.Steps[i].Accepted, test.ShouldBeFalse)
		test.That(t, result.Steps[i].State, test.ShouldEqual, Iterating)
		test.That(t, result.Steps[i].CandidateNorm, test.ShouldEqual, 0.)
		test.That(t, result.Steps[i].CandidateError, test.ShouldEqual, "out of range")
	}
	test.That(t, result.Steps[3].Accepted, test.ShouldBeTrue)
	test.That(t, result.Steps[3].CandidateError, test.ShouldBeEmpty)
	test.That(t, result.X.AtVec(0), test.ShouldAlmostEqual, 500, 1e-9)
	test.That(t, result.State, test.ShouldEqual, MaxIterExceeded)
}

func TestSolveErrors(t *testing.T) {
	solver := newTestSolver(t, DefaultConfig())

	_, err := solver.Solve(quadraticFit(), nil)
	test.That(t, err, test.ShouldNotBeNil)

	failing := ProblemFuncs{
		ResidualFunc: func(x mat.Vector) (*mat.VecDense, error) {
			return nil, errors.New("no residual today")
		},
		JacobianFunc: quadraticFit().(ProblemFuncs).JacobianFunc,
	}
	_, err = solver.Solve(failing, mat.NewVecDense(3, nil))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "no residual today")

	badJacobian := ProblemFuncs{
		ResidualFunc: quadraticFit().(ProblemFuncs).ResidualFunc,
		JacobianFunc: func(x mat.Vector) (*mat.Dense, error) {
			return nil, errors.New("no jacobian today")
		},
	}
	_, err = solver.Solve(badJacobian, mat.NewVecDense(3, nil))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "no jacobian today")

	wrongShape := ProblemFuncs{
		ResidualFunc: quadraticFit().(ProblemFuncs).ResidualFunc,
		JacobianFunc: func(x mat.Vector) (*mat.Dense, error) {
			return mat.NewDense(2, 3, nil), nil
		},
	}
	_, err = solver.Solve(wrongShape, mat.NewVecDense(3, nil))
	test.That(t, err, test.ShouldNotBeNil)

	wrongWidth := ProblemFuncs{
		ResidualFunc: quadraticFit().(ProblemFuncs).ResidualFunc,
		JacobianFunc: func(x mat.Vector) (*mat.Dense, error) {
			return mat.NewDense(5, 2, []float64{1, 1, 4, 2, 9, 3, 16, 4, 25, 5}), nil
		},
	}
	_, err = solver.Solve(wrongWidth, mat.NewVecDense(3, nil))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "2 columns but there are 3 parameters")

	_, err = ProblemFuncs{}.Residual(mat.NewVecDense(1, nil))
	test.That(t, err, test.ShouldNotBeNil)
	_, err = ProblemFuncs{}.Jacobian(mat.NewVecDense(1, nil))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestSolveFunction(t *testing.T) {
	x, err := Solve(quadraticFit(), mat.NewVecDense(3, []float64{0, 0, 0}), 100, 1e-8, 1e-3, 10)
	test.That(t, err, test.ShouldBeNil)
	for i := 0; i < 3; i++ {
		test.That(t, x.AtVec(i), test.ShouldAlmostEqual, 1, 1e-8)
	}

	_, err = Solve(quadraticFit(), mat.NewVecDense(3, nil), 0, 1e-8, 1e-3, 10)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestSolveLogsSteps(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	solver, err := NewSolver(DefaultConfig(), logger)
	test.That(t, err, test.ShouldBeNil)
	result, err := solver.Solve(quadraticFit(), mat.NewVecDense(3, []float64{0, 0, 0}))
	test.That(t, err, test.ShouldBeNil)

	test.That(t, logs.FilterMessage("step").Len(), test.ShouldEqual, len(result.Steps))
	finished := logs.FilterMessage("solve finished").All()
	test.That(t, len(finished), test.ShouldEqual, 1)
	test.That(t, finished[0].ContextMap()["state"], test.ShouldEqual, "converged")
}

func TestStateString(t *testing.T) {
	test.That(t, Iterating.String(), test.ShouldEqual, "iterating")
	test.That(t, Converged.String(), test.ShouldEqual, "converged")
	test.That(t, MaxIterExceeded.String(), test.ShouldEqual, "max_iter_exceeded")
	test.That(t, SingularRetry.String(), test.ShouldEqual, "singular_retry")
	test.That(t, State(42).String(), test.ShouldEqual, "State(42)")

	text, err := SingularRetry.MarshalText()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(text), test.ShouldEqual, "singular_retry")

	for _, state := range []State{Iterating, Converged, MaxIterExceeded, SingularRetry} {
		encoded, err := json.Marshal(Step{State: state})
		test.That(t, err, test.ShouldBeNil)
		var decoded Step
		test.That(t, json.Unmarshal(encoded, &decoded), test.ShouldBeNil)
		test.That(t, decoded.State, test.ShouldEqual, state)
	}

	var s State
	err = s.UnmarshalText([]byte("bogus"))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "bogus")
}

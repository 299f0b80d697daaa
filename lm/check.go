package lm

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// CheckJacobian compares problem's analytic Jacobian at x against a central finite difference
// approximation with the given step and returns the largest absolute deviation. A step of zero
// uses the finite difference package default.
func CheckJacobian(problem Problem, x mat.Vector, step float64) (float64, error) {
	analytic, err := problem.Jacobian(x)
	if err != nil {
		return 0, err
	}
	rows, cols := analytic.Dims()
	if cols != x.Len() {
		return 0, errors.Errorf("jacobian has %d columns for %d parameters", cols, x.Len())
	}

	var evalErr error
	residual := func(y, xs []float64) {
		r, err := problem.Residual(mat.NewVecDense(len(xs), xs))
		if err != nil {
			if evalErr == nil {
				evalErr = err
			}
			return
		}
		for i := range y {
			y[i] = r.AtVec(i)
		}
	}
	numeric := mat.NewDense(rows, cols, nil)
	fd.Jacobian(numeric, residual, mat.VecDenseCopyOf(x).RawVector().Data, &fd.JacobianSettings{
		Formula: fd.Central,
		Step:    step,
	})
	if evalErr != nil {
		return 0, errors.Wrap(evalErr, "error evaluating residual for finite differences")
	}

	var worst float64
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			worst = math.Max(worst, math.Abs(analytic.At(i, j)-numeric.At(i, j)))
		}
	}
	return worst, nil
}

// MinimizeLBFGS minimizes ½‖r(x)‖² with gonum's L-BFGS using the gradient Jᵀr. It is slower to
// converge than Solve on least squares problems and serves as an independent cross-check.
func MinimizeLBFGS(problem Problem, x0 mat.Vector, maxIter int) (*mat.VecDense, error) {
	var evalErr error
	record := func(err error) {
		if evalErr == nil {
			evalErr = err
		}
	}
	p := optimize.Problem{
		Func: func(x []float64) float64 {
			r, err := problem.Residual(mat.NewVecDense(len(x), x))
			if err != nil {
				record(err)
				return math.Inf(1)
			}
			norm := vecNorm(r)
			return 0.5 * norm * norm
		},
		Grad: func(grad, x []float64) {
			xv := mat.NewVecDense(len(x), x)
			r, err := problem.Residual(xv)
			if err != nil {
				record(err)
				return
			}
			jac, err := problem.Jacobian(xv)
			if err != nil {
				record(err)
				return
			}
			g := mat.NewVecDense(len(grad), grad)
			g.MulVec(jac.T(), r)
		},
	}
	settings := &optimize.Settings{MajorIterations: maxIter}
	result, err := optimize.Minimize(p, mat.VecDenseCopyOf(x0).RawVector().Data, settings, &optimize.LBFGS{})
	if result == nil {
		return nil, errors.Wrap(err, "lbfgs failed")
	}
	if math.IsInf(result.F, 1) || math.IsNaN(result.F) {
		if evalErr != nil {
			return nil, evalErr
		}
		return nil, errors.New("lbfgs found no finite objective")
	}
	// A line search failure next to the minimum still leaves the best location in result.
	return mat.NewVecDense(len(result.X), result.X), nil
}

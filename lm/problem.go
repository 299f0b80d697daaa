// Package lm implements a dense Levenberg-Marquardt solver for nonlinear least squares problems.
package lm

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Problem provides the residual vector r(x) and its Jacobian J(x) = ∂r/∂x. Both are evaluated
// from scratch for every x and must not retain or modify x.
type Problem interface {
	Residual(x mat.Vector) (*mat.VecDense, error)
	Jacobian(x mat.Vector) (*mat.Dense, error)
}

// ProblemFuncs bundles a pair of functions into a Problem.
type ProblemFuncs struct {
	ResidualFunc func(x mat.Vector) (*mat.VecDense, error)
	JacobianFunc func(x mat.Vector) (*mat.Dense, error)
}

// Residual calls ResidualFunc.
func (pf ProblemFuncs) Residual(x mat.Vector) (*mat.VecDense, error) {
	if pf.ResidualFunc == nil {
		return nil, errors.New("no residual function")
	}
	return pf.ResidualFunc(x)
}

// Jacobian calls JacobianFunc.
func (pf ProblemFuncs) Jacobian(x mat.Vector) (*mat.Dense, error) {
	if pf.JacobianFunc == nil {
		return nil, errors.New("no jacobian function")
	}
	return pf.JacobianFunc(x)
}

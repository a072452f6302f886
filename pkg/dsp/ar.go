/*
 Licensed under the Apache License, Version 2.0 (the "License");
 you may not use this file except in compliance with the License.
 You may obtain a copy of the License at

     https://www.apache.org/licenses/LICENSE-2.0

 Unless required by applicable law or agreed to in writing, software
 distributed under the License is distributed on an "AS IS" BASIS,
 WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 See the License for the specific language governing permissions and
 limitations under the License.
*/

package dsp

import (
	"errors"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ARFitter estimates an AR model of the given order from a zero mean signal
type ARFitter func(x []float64, order int) (ARModel, error)

// ridge is the diagonal loading of the normal equations relative to their mean diagonal
const ridge = 1e-9

// ARModel is an autoregressive model x[n] = Σ Coefficients[k] * x[n-1-k]
type ARModel struct {
	Coefficients []float64
}

func (m ARModel) Order() int {
	return len(m.Coefficients)
}

// FitBurg estimates an AR model of the given order with Burg's method.
// The signal is expected to have zero mean.
func FitBurg(x []float64, order int) (ARModel, error) {
	if order < 1 {
		return ARModel{}, ErrInvalidArgument{What: "model order must be positive"}
	}
	n := len(x)
	if n <= order {
		return ARModel{}, ErrInsufficientData{Need: order + 1, Have: n}
	}

	forward := make([]float64, n)
	backward := make([]float64, n)
	copy(forward, x)
	copy(backward, x)

	// a is the prediction error filter, a[0] is always 1
	a := make([]float64, order+1)
	a[0] = 1
	prev := make([]float64, order+1)

	for m := 1; m <= order; m++ {
		f := forward[m:]
		b := backward[m-1 : n-1]
		num := floats.Dot(f, b)
		den := floats.Dot(f, f) + floats.Dot(b, b)
		k := 0.0
		if den > 0 {
			k = -2 * num / den
		}

		copy(prev, a)
		for i := 1; i < m; i++ {
			a[i] = prev[i] + k*prev[m-i]
		}
		a[m] = k

		for i := n - 1; i >= m; i-- {
			fi := forward[i]
			forward[i] = fi + k*backward[i-1]
			backward[i] = backward[i-1] + k*fi
		}
	}

	coefficients := make([]float64, order)
	for i := range coefficients {
		coefficients[i] = -a[i+1]
	}
	return ARModel{Coefficients: coefficients}, nil
}

// FitLeastSquares estimates an AR model by minimizing the forward prediction error
// over the samples where all regressors are available (covariance method).
// The normal equations are slightly loaded on the diagonal so that signals made of
// a few pure oscillations still give a stable predictor.
func FitLeastSquares(x []float64, order int) (ARModel, error) {
	if order < 1 {
		return ARModel{}, ErrInvalidArgument{What: "model order must be positive"}
	}
	n := len(x)
	if n < 2*order {
		return ARModel{}, ErrInsufficientData{Need: 2 * order, Have: n}
	}

	// regressor k of target x[i] is x[i-1-k]
	lag := func(k int) []float64 {
		return x[order-1-k : n-1-k]
	}
	normal := mat.NewSymDense(order, nil)
	rhs := mat.NewVecDense(order, nil)
	trace := 0.0
	for i := 0; i < order; i++ {
		for j := i; j < order; j++ {
			normal.SetSym(i, j, floats.Dot(lag(i), lag(j)))
		}
		rhs.SetVec(i, floats.Dot(x[order:], lag(i)))
		trace += normal.At(i, i)
	}
	if trace == 0 {
		return ARModel{Coefficients: make([]float64, order)}, nil
	}
	loading := ridge * trace / float64(order)
	for i := 0; i < order; i++ {
		normal.SetSym(i, i, normal.At(i, i)+loading)
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(normal); !ok {
		return ARModel{}, ErrInvalidArgument{What: "normal equations are not positive definite"}
	}
	solution := mat.NewVecDense(order, nil)
	if err := chol.SolveVecTo(solution, rhs); err != nil {
		// the solution is still computed for an ill-conditioned system
		var condition mat.Condition
		if !errors.As(err, &condition) {
			return ARModel{}, err
		}
	}
	coefficients := make([]float64, order)
	for i := range coefficients {
		coefficients[i] = solution.AtVec(i)
	}
	return ARModel{Coefficients: coefficients}, nil
}

// Predict returns x extended by steps predicted samples
func (m ARModel) Predict(x []float64, steps int) ([]float64, error) {
	p := m.Order()
	if len(x) < p {
		return nil, ErrInsufficientData{Need: p, Have: len(x)}
	}
	out := make([]float64, len(x), len(x)+steps)
	copy(out, x)
	for s := 0; s < steps; s++ {
		n := len(out)
		next := 0.0
		for k, c := range m.Coefficients {
			next += c * out[n-1-k]
		}
		out = append(out, next)
	}
	return out, nil
}

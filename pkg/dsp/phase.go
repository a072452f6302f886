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
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/stat"
)

// PhaseEstimate describes the oscillation at the estimated sample
type PhaseEstimate struct {
	// Phase in radians, (-π, π]
	Phase float64
	// Frequency in radians per sample
	Frequency float64
	Amplitude float64
}

// PhaseEstimator estimates the instantaneous phase at the newest sample of a history.
//
// The newest Edge samples are not trusted: the model is fitted on the samples before
// them and the series is extrapolated over the edge, Lead samples beyond the newest
// sample and half a window more. The analytic signal of the last Window samples of the
// extended series is then read at the sample of interest, which sits in the middle of
// the window, away from the transform's own edge effects.
type PhaseEstimator struct {
	Window int
	Order  int
	Edge   int
	// Lead moves the estimate forward, in samples, to make up for delay upstream
	Lead int
	// Fit defaults to FitLeastSquares
	Fit ARFitter

	hilbert  *Hilbert
	analytic []complex128
}

func NewPhaseEstimator(window, order, edge, lead int) (*PhaseEstimator, error) {
	if order < 1 {
		return nil, ErrInvalidArgument{What: "model order must be positive"}
	}
	if edge < 0 || lead < 0 {
		return nil, ErrInvalidArgument{What: "edge and lead must not be negative"}
	}
	if window < 4 {
		return nil, ErrInvalidArgument{What: "window must have at least 4 samples"}
	}
	hilbert, err := NewHilbert(window)
	if err != nil {
		return nil, err
	}
	return &PhaseEstimator{
		Window:  window,
		Order:   order,
		Edge:    edge,
		Lead:    lead,
		Fit:     FitLeastSquares,
		hilbert: hilbert,
	}, nil
}

// Required is the history length Estimate needs
func (p *PhaseEstimator) Required() int {
	return p.Window + p.Order + p.Edge
}

// Estimate uses the newest Required samples of x
func (p *PhaseEstimator) Estimate(x []float64) (PhaseEstimate, error) {
	required := p.Required()
	if len(x) < required {
		return PhaseEstimate{}, ErrInsufficientData{Need: required, Have: len(x)}
	}
	x = x[len(x)-required:]
	trusted := required - p.Edge

	fit := make([]float64, trusted)
	copy(fit, x[:trusted])
	mean := stat.Mean(fit, nil)
	for i := range fit {
		fit[i] -= mean
	}
	fitter := p.Fit
	if fitter == nil {
		fitter = FitLeastSquares
	}
	model, err := fitter(fit, p.Order)
	if err != nil {
		return PhaseEstimate{}, err
	}
	half := p.Window / 2
	extended, err := model.Predict(fit, p.Edge+p.Lead+half)
	if err != nil {
		return PhaseEstimate{}, err
	}

	segment := extended[len(extended)-p.Window:]
	segmentMean := stat.Mean(segment, nil)
	for i := range segment {
		segment[i] -= segmentMean
	}
	p.analytic, err = p.hilbert.Analytic(p.analytic, segment)
	if err != nil {
		return PhaseEstimate{}, err
	}

	at := p.analytic[half-1]
	return PhaseEstimate{
		Phase:     cmplx.Phase(at),
		Frequency: meanFrequency(p.analytic),
		Amplitude: cmplx.Abs(at),
	}, nil
}

// meanFrequency is the phase of the summed lag-one products
func meanFrequency(z []complex128) float64 {
	var acc complex128
	for i := 1; i < len(z); i++ {
		acc += z[i] * cmplx.Conj(z[i-1])
	}
	return cmplx.Phase(acc)
}

// WrapPhase maps a phase to (-π, π]
func WrapPhase(phase float64) float64 {
	wrapped := math.Mod(phase+math.Pi, 2*math.Pi)
	if wrapped <= 0 {
		wrapped += 2 * math.Pi
	}
	return wrapped - math.Pi
}

// PhaseDistance is the signed shortest angle from b to a
func PhaseDistance(a, b float64) float64 {
	return WrapPhase(a - b)
}

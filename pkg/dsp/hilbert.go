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
	"gonum.org/v1/gonum/dsp/fourier"
)

// Hilbert builds analytic signals of a fixed length through the FFT
type Hilbert struct {
	n      int
	fft    *fourier.CmplxFFT
	work   []complex128
	weight []float64
}

func NewHilbert(n int) (*Hilbert, error) {
	if n < 2 || n%2 != 0 {
		return nil, ErrInvalidArgument{What: "Hilbert transform length must be even and at least 2"}
	}
	// keep DC and Nyquist, double positive and drop negative frequencies
	weight := make([]float64, n)
	weight[0] = 1
	weight[n/2] = 1
	for i := 1; i < n/2; i++ {
		weight[i] = 2
	}
	return &Hilbert{
		n:      n,
		fft:    fourier.NewCmplxFFT(n),
		work:   make([]complex128, n),
		weight: weight,
	}, nil
}

func (h *Hilbert) Len() int {
	return h.n
}

// Analytic returns x + j*H{x}. dst is reused when it has length n.
func (h *Hilbert) Analytic(dst []complex128, x []float64) ([]complex128, error) {
	if len(x) != h.n {
		return nil, ErrInsufficientData{Need: h.n, Have: len(x)}
	}
	for i, v := range x {
		h.work[i] = complex(v, 0)
	}
	h.fft.Coefficients(h.work, h.work)
	// the inverse transform is not normalized
	scale := 1 / float64(h.n)
	for i := range h.work {
		h.work[i] *= complex(h.weight[i]*scale, 0)
	}
	if len(dst) != h.n {
		dst = make([]complex128, h.n)
	}
	return h.fft.Sequence(dst, h.work), nil
}

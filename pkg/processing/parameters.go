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

package processing

import (
	"fmt"
	"math"
)

const (
	DefaultDownsamplingFactor  = 10
	DefaultDelay               = 6
	DefaultEdge                = 35
	DefaultModelOrder          = 15
	DefaultHilbertWinLength    = 64
	DefaultStimulationTarget   = math.Pi / 2
	DefaultPhaseShift          = 0
	DefaultGALength            = 350
	DefaultGAAverage           = 25
	DefaultChannel             = 0
	DefaultSamplesToDisplay    = 10000
	DefaultBenchmarkIterations = 10000

	ModelFitLeastSquares = "lsq"
	ModelFitBurg         = "burg"
)

// Parameters are fixed for a whole run
type Parameters struct {
	DownsamplingFactor int `json:"downsamplingFactor"`
	// Delay of the BCG removal in downsampled samples
	Delay            int `json:"delay"`
	Edge             int `json:"edge"`
	ModelOrder       int `json:"modelOrder"`
	HilbertWinLength int `json:"hilbertWinLength"`
	// StimulationTarget is the phase to stimulate at, radians
	StimulationTarget float64 `json:"stimulationTarget"`
	// PhaseShift compensates output latency, in samples at the acquisition rate
	PhaseShift   int  `json:"phaseShift"`
	GACorrection bool `json:"gaCorrection"`
	// GALength is the gradient artifact period in samples at the acquisition rate
	GALength  int    `json:"gaLength"`
	GAAverage int    `json:"gaAverage"`
	ModelFit  string `json:"modelFit"`
	// Channel is the logical index of the processed data channel
	Channel             int `json:"channel"`
	SamplesToDisplay    int `json:"samplesToDisplay"`
	BenchmarkIterations int `json:"benchmarkIterations"`
}

func DefaultParameters() Parameters {
	return Parameters{
		DownsamplingFactor:  DefaultDownsamplingFactor,
		Delay:               DefaultDelay,
		Edge:                DefaultEdge,
		ModelOrder:          DefaultModelOrder,
		HilbertWinLength:    DefaultHilbertWinLength,
		StimulationTarget:   DefaultStimulationTarget,
		PhaseShift:          DefaultPhaseShift,
		GALength:            DefaultGALength,
		GAAverage:           DefaultGAAverage,
		ModelFit:            ModelFitLeastSquares,
		Channel:             DefaultChannel,
		SamplesToDisplay:    DefaultSamplesToDisplay,
		BenchmarkIterations: DefaultBenchmarkIterations,
	}
}

func (p Parameters) Validate() error {
	switch {
	case p.DownsamplingFactor < 1:
		return ErrConfiguration{What: fmt.Sprintf("downsampling factor %d must be positive", p.DownsamplingFactor)}
	case p.Delay < 0:
		return ErrConfiguration{What: fmt.Sprintf("BCG delay %d must not be negative", p.Delay)}
	case p.Edge < 0:
		return ErrConfiguration{What: fmt.Sprintf("edge %d must not be negative", p.Edge)}
	case p.ModelOrder < 1:
		return ErrConfiguration{What: fmt.Sprintf("model order %d must be positive", p.ModelOrder)}
	case p.HilbertWinLength < 4 || p.HilbertWinLength%2 != 0:
		return ErrConfiguration{What: fmt.Sprintf("Hilbert window length %d must be even and at least 4", p.HilbertWinLength)}
	case p.StimulationTarget < -math.Pi || p.StimulationTarget > math.Pi || math.IsNaN(p.StimulationTarget):
		return ErrConfiguration{What: fmt.Sprintf("stimulation target %g is outside [-pi, pi]", p.StimulationTarget)}
	case p.PhaseShift < 0:
		return ErrConfiguration{What: fmt.Sprintf("phase shift %d must not be negative", p.PhaseShift)}
	case p.GACorrection && p.GALength < 1:
		return ErrConfiguration{What: fmt.Sprintf("gradient artifact length %d must be positive", p.GALength)}
	case p.GACorrection && p.GAAverage < 1:
		return ErrConfiguration{What: fmt.Sprintf("gradient artifact averaging %d must be positive", p.GAAverage)}
	case p.ModelFit != "" && p.ModelFit != ModelFitLeastSquares && p.ModelFit != ModelFitBurg:
		return ErrConfiguration{What: fmt.Sprintf("unknown model fit %q, must be %s or %s", p.ModelFit, ModelFitLeastSquares, ModelFitBurg)}
	case p.Channel < 0:
		return ErrConfiguration{What: fmt.Sprintf("channel %d must not be negative", p.Channel)}
	case p.SamplesToDisplay < 1:
		return ErrConfiguration{What: fmt.Sprintf("samples to display %d must be positive", p.SamplesToDisplay)}
	case p.BenchmarkIterations < 1:
		return ErrConfiguration{What: fmt.Sprintf("benchmark iterations %d must be positive", p.BenchmarkIterations)}
	}
	return nil
}

// HistoryLength is the number of downsampled samples the phase estimate needs
func (p Parameters) HistoryLength() int {
	return p.HilbertWinLength + p.ModelOrder + p.Edge
}

func (p Parameters) String() string {
	return fmt.Sprintf("downsampling factor %d, delay %d, edge %d, model order %d (%s), Hilbert window %d, "+
		"stimulation target %.3f, phase shift %d, GA correction %t (length %d, average %d), channel %d",
		p.DownsamplingFactor, p.Delay, p.Edge, p.ModelOrder, p.ModelFit, p.HilbertWinLength,
		p.StimulationTarget, p.PhaseShift, p.GACorrection, p.GALength, p.GAAverage, p.Channel)
}

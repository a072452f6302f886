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
	"errors"
	"math"

	"jinr.ru/greenlab/go-eeg/pkg/dsp"
)

// stageOutput is produced for every downsampled sample
type stageOutput struct {
	signal   float64
	estimate dsp.PhaseEstimate
	// phase is the estimate advanced by the phase shift
	phase       float64
	stimulation bool
}

// chain runs the stages of one channel sample by sample
type chain struct {
	params    Parameters
	ga        *dsp.GACorrector
	decimator *dsp.Decimator
	bcg       *dsp.DelaySubtractor
	estimator *dsp.PhaseEstimator
	history   []float64
	// advance is the phase shift in downsampled samples
	advance   float64
	lastPhase float64
	hasLast   bool
}

func newChain(p Parameters) (*chain, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	c := &chain{
		params:  p,
		advance: float64(p.PhaseShift) / float64(p.DownsamplingFactor),
	}
	var err error
	if p.GACorrection {
		if c.ga, err = dsp.NewGACorrector(p.GALength, p.GAAverage); err != nil {
			return nil, ErrConfiguration{What: err.Error()}
		}
	}
	if c.decimator, err = dsp.NewDecimator(p.DownsamplingFactor, nil); err != nil {
		return nil, ErrConfiguration{What: err.Error()}
	}
	if c.bcg, err = dsp.NewDelaySubtractor(p.Delay); err != nil {
		return nil, ErrConfiguration{What: err.Error()}
	}
	lead := int(math.Round(c.decimator.GroupDelay()))
	if c.estimator, err = dsp.NewPhaseEstimator(p.HilbertWinLength, p.ModelOrder, p.Edge, lead); err != nil {
		return nil, ErrConfiguration{What: err.Error()}
	}
	if p.ModelFit == ModelFitBurg {
		c.estimator.Fit = dsp.FitBurg
	}
	c.history = make([]float64, 0, 4*c.estimator.Required())
	return c, nil
}

// warmup is the number of raw samples needed before the first estimate
func (c *chain) warmup() int {
	return (c.estimator.Required()+1)*c.params.DownsamplingFactor + dsp.DefaultTaps(c.params.DownsamplingFactor)
}

func (c *chain) reset() {
	if c.ga != nil {
		c.ga.Reset()
	}
	c.decimator.Reset()
	c.bcg.Reset()
	c.history = c.history[:0]
	c.hasLast = false
}

// skip accounts for n raw samples lost before the next push
func (c *chain) skip(n uint64) {
	if c.ga != nil {
		c.ga.Skip(n)
	}
}

// push feeds one raw sample. produced is false while the decimator collects input.
// The error is ErrBufferUnderrun until enough history is collected.
func (c *chain) push(x float64) (out stageOutput, produced bool, err error) {
	if c.ga != nil {
		x = c.ga.Correct(x)
	}
	y, ok := c.decimator.Push(x)
	if !ok {
		return out, false, nil
	}
	y = c.bcg.Apply(y)
	out.signal = y

	required := c.estimator.Required()
	if len(c.history) == cap(c.history) {
		copy(c.history, c.history[len(c.history)-required+1:])
		c.history = c.history[:required-1]
	}
	c.history = append(c.history, y)

	estimate, err := c.estimator.Estimate(c.history)
	if err != nil {
		var insufficient dsp.ErrInsufficientData
		if errors.As(err, &insufficient) {
			return out, true, ErrBufferUnderrun{Err: err}
		}
		return out, true, err
	}
	out.estimate = estimate
	// the estimate describes the BCG output, undo the phase the subtraction added
	phase := estimate.Phase - c.bcg.PhaseShift(estimate.Frequency)
	out.phase = dsp.WrapPhase(phase + estimate.Frequency*c.advance)
	out.stimulation = c.crossed(out.phase)
	return out, true, nil
}

// crossed reports an upward crossing of the stimulation target since the previous estimate
func (c *chain) crossed(phase float64) bool {
	defer func() {
		c.lastPhase = phase
		c.hasLast = true
	}()
	if !c.hasLast {
		return false
	}
	before := dsp.PhaseDistance(c.lastPhase, c.params.StimulationTarget)
	after := dsp.PhaseDistance(phase, c.params.StimulationTarget)
	// a jump of half a turn or more is the wrap point opposite to the target
	return before < 0 && after >= 0 && after-before < math.Pi
}

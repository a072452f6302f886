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
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// BenchmarkStats describes the time spent per estimate, in microseconds
type BenchmarkStats struct {
	Iterations int     `json:"iterations"`
	Mean       float64 `json:"meanUs"`
	StdDev     float64 `json:"stdDevUs"`
	Min        float64 `json:"minUs"`
	Max        float64 `json:"maxUs"`
}

func newBenchmarkStats(elapsed []time.Duration) BenchmarkStats {
	if len(elapsed) == 0 {
		return BenchmarkStats{}
	}
	us := make([]float64, len(elapsed))
	for i, d := range elapsed {
		us[i] = float64(d) / float64(time.Microsecond)
	}
	s := BenchmarkStats{
		Iterations: len(us),
		Min:        floats.Min(us),
		Max:        floats.Max(us),
	}
	if len(us) > 1 {
		s.Mean, s.StdDev = stat.MeanStdDev(us, nil)
	} else {
		s.Mean = us[0]
	}
	return s
}

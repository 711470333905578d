// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.


package stats

import (
	"fmt"

	"gonum.org/v1/gonum/stat"
)

// Statistics of the alpha channel of an RGBA buffer
type AlphaStats struct {
	Pixels      int      `json:"pixels"`
	Transparent int      `json:"transparent"` // alpha==0
	Opaque      int      `json:"opaque"`      // alpha==255
	Partial     int      `json:"partial"`     // everything in between, i.e. soft edges and noise
	Mean        float64  `json:"mean"`
	StdDev      float64  `json:"stdDev"`
	Median      float64  `json:"median"`
	Histogram   [256]int `json:"-"`
}

var alphaValues = func() []float64 {
	xs := make([]float64, 256)
	for i := range xs {
		xs[i] = float64(i)
	}
	return xs
}()

// Calculates alpha statistics for the given RGBA buffer, which must hold at least one pixel
func NewAlphaStats(pix []byte) *AlphaStats {
	s := &AlphaStats{Pixels: len(pix) / 4}
	for i := 3; i < len(pix); i += 4 {
		s.Histogram[pix[i]]++
	}
	s.Transparent, s.Opaque = s.Histogram[0], s.Histogram[255]
	s.Partial = s.Pixels - s.Transparent - s.Opaque
	if s.Pixels == 0 {
		return s
	}

	weights := make([]float64, 256)
	for i, c := range s.Histogram {
		weights[i] = float64(c)
	}
	if s.Pixels > 1 {
		s.Mean, s.StdDev = stat.MeanStdDev(alphaValues, weights)
	} else {
		s.Mean = stat.Mean(alphaValues, weights)
	}
	s.Median = stat.Quantile(0.5, stat.Empirical, alphaValues, weights)
	return s
}

// Fraction of pixels with soft or noisy alpha
func (s *AlphaStats) PartialFraction() float64 {
	if s.Pixels == 0 {
		return 0
	}
	return float64(s.Partial) / float64(s.Pixels)
}

func (s *AlphaStats) String() string {
	return fmt.Sprintf("alpha mean %.4g stddev %.4g median %.0f, transparent %d opaque %d partial %d (%.2f%%)",
		s.Mean, s.StdDev, s.Median, s.Transparent, s.Opaque, s.Partial, 100*s.PartialFraction())
}

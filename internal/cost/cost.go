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


// Package cost prices direct-to-film transfers of matted artworks by their printed size.
package cost

import (
	"math"
)

const (
	CostMultiplier = 0.8 // rupees per square inch, including a one inch margin per dimension
	DefaultDPI     = 150 // assumed print resolution when only pixel dimensions are known
)

// Returns the print cost for an artwork of the given height and width in inches.
// Non-positive and NaN dimensions cost nothing.
func Cost(heightInches, widthInches float64) float64 {
	if math.IsNaN(heightInches) || math.IsNaN(widthInches) || heightInches <= 0 || widthInches <= 0 {
		return 0
	}
	return (heightInches + 1) * (widthInches + 1) * CostMultiplier
}

// Converts a pixel count to inches at the given resolution, rounded to two decimals.
// A non-positive dpi selects DefaultDPI.
func PixelsToInches(pixels int, dpi float64) float64 {
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	return math.Round(float64(pixels)/dpi*100) / 100
}

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


package matte

import (
	"errors"
)

// Turns a raw mask into a matte: the extremum snap filter, then the box blur on its output.
// Always in this order, once each. The result depends only on the inputs, not on thread counts.
//
// A hard error in either stage aborts with a nil buffer. Degenerate radii do not abort:
// the returned buffer is valid and the error joins the degenerate warnings, see IsDegenerate.
func Apply(buf []byte, width, height int, rp RefineParams, sp SmoothParams) (out []byte, err error) {
	refined, refineErr := RefineWith(buf, width, height, rp)
	if refineErr != nil && !IsDegenerate(refineErr) {
		return nil, refineErr
	}
	out, smoothErr := SmoothWith(refined, width, height, sp)
	if smoothErr != nil && !IsDegenerate(smoothErr) {
		return nil, smoothErr
	}
	return out, errors.Join(refineErr, smoothErr)
}

// Apply with default parameters: refine radius 1, box radius 2, border alpha preserved
func ApplyDefault(buf []byte, width, height int) ([]byte, error) {
	return Apply(buf, width, height, DefaultRefineParams(), DefaultSmoothParams())
}

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
	"fmt"
)

// Buffer does not hold width*height RGBA pixels, or the dimensions are not positive.
// Filters return it before touching any pixel.
type InvalidBufferError struct {
	Width  int
	Height int
	Length int
}

func (e *InvalidBufferError) Error() string {
	if e.Width <= 0 || e.Height <= 0 {
		return fmt.Sprintf("invalid buffer dimensions %dx%d", e.Width, e.Height)
	}
	return fmt.Sprintf("invalid buffer length %d for %dx%d RGBA pixels, want %d",
		e.Length, e.Width, e.Height, e.Width*e.Height*4)
}

// Radius is negative, or so large that every pixel is a border pixel.
// The latter is Degenerate: the filter still returns a well-defined result alongside this error.
type InvalidParameterError struct {
	Stage      string
	Radius     int
	Width      int
	Height     int
	Degenerate bool
}

func (e *InvalidParameterError) Error() string {
	if e.Degenerate {
		return fmt.Sprintf("%s radius %d leaves no interior pixels in %dx%d image",
			e.Stage, e.Radius, e.Width, e.Height)
	}
	return fmt.Sprintf("invalid %s radius %d", e.Stage, e.Radius)
}

// Returns true if err carries only a degenerate-radius warning, i.e. the accompanying output is valid
func IsDegenerate(err error) bool {
	var pe *InvalidParameterError
	return errors.As(err, &pe) && pe.Degenerate
}

func validateBuffer(buf []byte, width, height int) error {
	if width <= 0 || height <= 0 || len(buf) != width*height*4 {
		return &InvalidBufferError{Width: width, Height: height, Length: len(buf)}
	}
	return nil
}

func validateRadius(stage string, radius, width, height int) error {
	if radius < 0 {
		return &InvalidParameterError{Stage: stage, Radius: radius, Width: width, Height: height}
	}
	// radius > (side-1)/2 without forming 2r+1, which overflows for huge radii
	if radius > (width-1)/2 || radius > (height-1)/2 {
		return &InvalidParameterError{Stage: stage, Radius: radius, Width: width, Height: height, Degenerate: true}
	}
	return nil
}

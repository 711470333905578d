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


// Package matte turns a raw segmentation mask in the alpha channel of an RGBA buffer
// into a clean, soft-edged alpha matte. Two single-pass local window filters run in fixed order:
// an extremum snap which cleans speckles and halos at mask edges, followed by a box blur.
// Only alpha is read and written, RGB passes through untouched.
package matte

import (
	"errors"
	"fmt"
	"strings"
)

const (
	Threshold = 128 // alpha values below snap towards the local minimum, others towards the local maximum
	Tolerance = 40  // maximum distance a snapped alpha value keeps from the local extremum

	DefaultRefineRadius = 1
	DefaultBoxRadius    = 2
)

// Parameters of the extremum snap filter
type RefineParams struct {
	Radius  int // window is (2*Radius+1)^2 pixels
	Threads int // maximum goroutines per pass, 0=GOMAXPROCS
}

// Parameters of the box blur
type SmoothParams struct {
	Radius  int          // window is (2*Radius+1)^2 pixels
	Border  BorderPolicy // alpha of pixels whose window leaves the image
	Threads int          // maximum goroutines per pass, 0=GOMAXPROCS
}

func DefaultRefineParams() RefineParams { return RefineParams{Radius: DefaultRefineRadius} }

func DefaultSmoothParams() SmoothParams {
	return SmoothParams{Radius: DefaultBoxRadius, Border: BorderPreserve}
}

// What the box blur writes for pixels closer than the radius to an image edge
type BorderPolicy int

const (
	BorderPreserve BorderPolicy = iota // keep the original alpha
	BorderZero                         // zero alpha, so edges fade out fully
)

func (b BorderPolicy) String() string {
	switch b {
	case BorderPreserve:
		return "preserve"
	case BorderZero:
		return "zero"
	}
	return fmt.Sprintf("BorderPolicy(%d)", int(b))
}

func ParseBorderPolicy(s string) (BorderPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "preserve":
		return BorderPreserve, nil
	case "zero":
		return BorderZero, nil
	}
	return BorderPreserve, errors.New(fmt.Sprintf("unknown border policy '%s', want preserve or zero", s))
}

func (b BorderPolicy) MarshalText() ([]byte, error) {
	if b != BorderPreserve && b != BorderZero {
		return nil, errors.New(fmt.Sprintf("unknown border policy %d", int(b)))
	}
	return []byte(b.String()), nil
}

func (b *BorderPolicy) UnmarshalText(text []byte) error {
	p, err := ParseBorderPolicy(string(text))
	if err != nil {
		return err
	}
	*b = p
	return nil
}

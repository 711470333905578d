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
	"math"
	"sync"
)

// Radii up to this value sum the full window per pixel, larger ones use running sums
const directSmoothMaxRadius = 1

// Real valued copy of the alpha channel of an RGBA buffer
type AlphaPlane struct {
	Width  int
	Height int
	Data   []float32
}

// Extracts the alpha channel of a validated RGBA buffer
func NewAlphaPlane(buf []byte, width, height int) *AlphaPlane {
	p := &AlphaPlane{Width: width, Height: height, Data: make([]float32, width*height)}
	p.extract(buf)
	return p
}

func (p *AlphaPlane) extract(buf []byte) {
	for i := range p.Data {
		p.Data[i] = float32(buf[i*4+3])
	}
}

// Writes the plane into the alpha channel of buf, rounding half up
func (p *AlphaPlane) MergeInto(buf []byte) {
	for i, v := range p.Data {
		buf[i*4+3] = uint8(math.Floor(float64(v) + 0.5))
	}
}

// Scratch planes, recycled across calls
var planePool = sync.Pool{New: func() any { return &AlphaPlane{} }}

func getPlane(width, height int) *AlphaPlane {
	p := planePool.Get().(*AlphaPlane)
	p.Width, p.Height = width, height
	if cap(p.Data) < width*height {
		p.Data = make([]float32, width*height)
	} else {
		p.Data = p.Data[:width*height]
	}
	return p
}

func putPlane(p *AlphaPlane) { planePool.Put(p) }

// Applies the box blur with the given radius, preserving border alpha.
// Returns a new buffer, the input is not modified.
func Smooth(buf []byte, width, height, boxRadius int) ([]byte, error) {
	return SmoothWith(buf, width, height, SmoothParams{Radius: boxRadius, Border: BorderPreserve})
}

// Applies the box blur. Every pixel whose (2r+1)^2 window lies inside the image gets the mean alpha
// of that window in the input. The mean is stored as float32 and then rounded half up, which reproduces
// browser Float32Array plus Math.round results exactly. For very large windows the float32 store can
// land on a .5 boundary, so other rounding rules may differ there. Other pixels follow p.Border.
//
// A degenerate radius returns the border policy applied to every pixel together with an *InvalidParameterError.
func SmoothWith(buf []byte, width, height int, p SmoothParams) (out []byte, err error) {
	if err = validateBuffer(buf, width, height); err != nil {
		return nil, err
	}
	if err = validateRadius("smooth", p.Radius, width, height); err != nil && !IsDegenerate(err) {
		return nil, err
	}

	src := getPlane(width, height)
	defer putPlane(src)
	src.extract(buf)

	dst := getPlane(width, height)
	defer putPlane(dst)
	if p.Border == BorderZero {
		clear(dst.Data)
	} else {
		copy(dst.Data, src.Data)
	}

	if err == nil {
		r := p.Radius
		rows := stripeRows(width*4*(2*r+1), 1)
		forEachStripe(r, height-r, rows, p.Threads, func(start, end int) {
			if r <= directSmoothMaxRadius {
				boxRowsDirect(dst.Data, src.Data, width, r, start, end)
			} else {
				boxRowsSliding(dst.Data, src.Data, width, r, start, end)
			}
		})
	}

	out = make([]byte, len(buf))
	copy(out, buf)
	dst.MergeInto(out)
	return out, err
}

// Blurs rows [start,end) by summing the full window of every pixel
func boxRowsDirect(dst, src []float32, width, r, start, end int) {
	n := float64((2*r + 1) * (2*r + 1))
	for y := start; y < end; y++ {
		for x := r; x < width-r; x++ {
			sum := float64(0)
			for dy := -r; dy <= r; dy++ {
				row := (y + dy) * width
				for dx := -r; dx <= r; dx++ {
					sum += float64(src[row+x+dx])
				}
			}
			dst[y*width+x] = float32(sum / n)
		}
	}
}

// Blurs rows [start,end) with running column sums, updated by one row per output row,
// and a running row sum over those. All partial sums are integers, so the result
// is identical to boxRowsDirect
func boxRowsSliding(dst, src []float32, width, r, start, end int) {
	side := 2*r + 1
	n := float64(side * side)
	colSum := make([]float64, width)
	for yy := start - r; yy <= start+r; yy++ {
		row := yy * width
		for x := 0; x < width; x++ {
			colSum[x] += float64(src[row+x])
		}
	}

	for y := start; y < end; y++ {
		if y > start {
			add, sub := (y+r)*width, (y-r-1)*width
			for x := 0; x < width; x++ {
				colSum[x] += float64(src[add+x]) - float64(src[sub+x])
			}
		}

		sum := float64(0)
		for x := 0; x < side; x++ {
			sum += colSum[x]
		}
		row := y * width
		for x := r; x < width-r; x++ {
			if x > r {
				sum += colSum[x+r] - colSum[x-r-1]
			}
			dst[row+x] = float32(sum / n)
		}
	}
}

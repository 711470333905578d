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

// Radii up to this value scan the full window per pixel, larger ones use separable extrema
const directRefineMaxRadius = 1

// Applies the extremum snap filter with the given radius and default settings.
// Returns a new buffer, the input is not modified.
func Refine(buf []byte, width, height, radius int) ([]byte, error) {
	return RefineWith(buf, width, height, RefineParams{Radius: radius})
}

// Applies the extremum snap filter. For every pixel whose (2r+1)^2 window lies inside the image,
// alpha a becomes min(a, minA+Tolerance) if a<Threshold, else max(a, maxA-Tolerance),
// with minA and maxA the extrema of the window in the input. Other pixels are copied verbatim.
//
// A degenerate radius returns an unchanged copy together with an *InvalidParameterError.
func RefineWith(buf []byte, width, height int, p RefineParams) (out []byte, err error) {
	if err = validateBuffer(buf, width, height); err != nil {
		return nil, err
	}
	if err = validateRadius("refine", p.Radius, width, height); err != nil && !IsDegenerate(err) {
		return nil, err
	}

	out = make([]byte, len(buf))
	copy(out, buf)
	if err != nil || p.Radius == 0 { // all border, or a single pixel window where min==max==a
		return out, err
	}

	r := p.Radius
	rows := stripeRows(width*4*(2*r+1), 1)
	forEachStripe(r, height-r, rows, p.Threads, func(start, end int) {
		if r <= directRefineMaxRadius {
			refineRowsDirect(out, buf, width, r, start, end)
		} else {
			refineRowsSeparable(out, buf, width, r, start, end)
		}
	})
	return out, nil
}

// Snaps alpha a towards the window extremum on its side of the threshold
func snap(a, minA, maxA int) byte {
	if a < Threshold {
		if v := minA + Tolerance; v < a {
			return byte(v)
		}
		return byte(a)
	}
	if v := maxA - Tolerance; v > a {
		return byte(v)
	}
	return byte(a)
}

// Refines rows [start,end) by scanning the full window of every pixel
func refineRowsDirect(out, in []byte, width, r, start, end int) {
	for y := start; y < end; y++ {
		for x := r; x < width-r; x++ {
			minA, maxA := 255, 0
			for dy := -r; dy <= r; dy++ {
				row := (y + dy) * width
				for dx := -r; dx <= r; dx++ {
					a := int(in[(row+x+dx)*4+3])
					if a < minA {
						minA = a
					}
					if a > maxA {
						maxA = a
					}
				}
			}
			i := (y*width+x)*4 + 3
			out[i] = snap(int(in[i]), minA, maxA)
		}
	}
}

// Refines rows [start,end) with column extrema over the window rows first,
// then row extrema over the window columns. Same result as refineRowsDirect
func refineRowsSeparable(out, in []byte, width, r, start, end int) {
	colMin := make([]uint8, width)
	colMax := make([]uint8, width)

	for y := start; y < end; y++ {
		top := (y - r) * width
		for x := 0; x < width; x++ {
			a := in[(top+x)*4+3]
			colMin[x], colMax[x] = a, a
		}
		for yy := y - r + 1; yy <= y+r; yy++ {
			row := yy * width
			for x := 0; x < width; x++ {
				a := in[(row+x)*4+3]
				if a < colMin[x] {
					colMin[x] = a
				}
				if a > colMax[x] {
					colMax[x] = a
				}
			}
		}

		for x := r; x < width-r; x++ {
			minA, maxA := colMin[x-r], colMax[x-r]
			for xx := x - r + 1; xx <= x+r; xx++ {
				if colMin[xx] < minA {
					minA = colMin[xx]
				}
				if colMax[xx] > maxA {
					maxA = colMax[xx]
				}
			}
			i := (y*width+x)*4 + 3
			out[i] = snap(int(in[i]), int(minA), int(maxA))
		}
	}
}

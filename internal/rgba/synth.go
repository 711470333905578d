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


package rgba

import (
	"math"

	"github.com/valyala/fastrand"
)

// Creates a synthetic segmentation result for trying out the matte pipeline without a model:
// an opaque disc with a soft halo over transparent background, RGB as a colour gradient,
// and a fraction density of pixels replaced by random alpha speckles. Same seed, same image.
func NewSpeckledMask(width, height int, seed uint32, density float32) *Image {
	res := NewImage(width, height)
	rng := fastrand.RNG{}
	rng.Seed(seed)

	cx, cy := float64(width-1)/2, float64(height-1)/2
	radius := math.Min(float64(width), float64(height)) / 3
	halo := math.Max(2, radius/8)
	threshold := uint32(float64(density) * (1 << 20))

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := (y*width + x) * 4
			res.Pix[i+0] = uint8(x * 255 / max(width-1, 1))
			res.Pix[i+1] = uint8(y * 255 / max(height-1, 1))
			res.Pix[i+2] = 160

			d := math.Hypot(float64(x)-cx, float64(y)-cy)
			var a float64
			switch {
			case d <= radius:
				a = 255
			case d < radius+halo:
				a = 255 * (1 - (d-radius)/halo)
			}
			res.Pix[i+3] = uint8(math.Round(a))

			if threshold > 0 && rng.Uint32n(1<<20) < threshold {
				res.Pix[i+3] = uint8(rng.Uint32n(256))
			}
		}
	}
	return res
}

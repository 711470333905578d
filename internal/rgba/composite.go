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
	colorful "github.com/lucasb-eyer/go-colorful"
)

// Default background for formats without alpha
var White = colorful.Color{R: 1, G: 1, B: 1}

// Parses a background colour given as #rgb or #rrggbb hex code
func ParseBackground(hex string) (colorful.Color, error) {
	return colorful.Hex(hex)
}

// Returns an opaque copy of the image, blended over the given background in linear RGB.
// Fully opaque and fully transparent pixels are copied resp. replaced without blending.
func (f *Image) Composite(background colorful.Color) *Image {
	res := f.Clone()
	br, bg, bb := background.Clamped().RGB255()
	for i := 0; i < len(res.Pix); i += 4 {
		switch a := res.Pix[i+3]; a {
		case 255:
			continue
		case 0:
			res.Pix[i+0], res.Pix[i+1], res.Pix[i+2] = br, bg, bb
		default:
			fg := colorful.Color{
				R: float64(res.Pix[i+0]) / 255,
				G: float64(res.Pix[i+1]) / 255,
				B: float64(res.Pix[i+2]) / 255,
			}
			res.Pix[i+0], res.Pix[i+1], res.Pix[i+2] = background.BlendLinearRgb(fg, float64(a)/255).Clamped().RGB255()
		}
		res.Pix[i+3] = 255
	}
	return res
}

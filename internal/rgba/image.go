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
	"errors"
	"fmt"
	"image"
	"image/draw"
	"path/filepath"
	"strings"
)

// An 8-bit RGBA image with non-premultiplied alpha.
// Pix holds Width*Height pixels in row-major order, four bytes R, G, B, A each.
type Image struct {
	ID       int    // Sequential ID number, for log output
	FileName string // Original file name, if any, for log output and export naming

	Width  int
	Height int
	Pix    []byte
}

// Creates a transparent black image of the given size
func NewImage(width, height int) *Image {
	return &Image{Width: width, Height: height, Pix: make([]byte, width*height*4)}
}

// Wraps the given pixel buffer. Data is not copied.
func NewImageFromPix(width, height int, pix []byte) (*Image, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.New(fmt.Sprintf("invalid image dimensions %dx%d", width, height))
	}
	if len(pix) != width*height*4 {
		return nil, errors.New(fmt.Sprintf("pixel buffer of %d bytes does not match %dx%d RGBA", len(pix), width, height))
	}
	return &Image{Width: width, Height: height, Pix: pix}, nil
}

// Converts any Go image into a non-premultiplied RGBA image anchored at the origin
func NewImageFromGoImage(img image.Image) *Image {
	b := img.Bounds()
	res := NewImage(b.Dx(), b.Dy())
	if n, ok := img.(*image.NRGBA); ok && n.Stride == 4*b.Dx() && n.Rect.Min == (image.Point{}) {
		copy(res.Pix, n.Pix)
		return res
	}
	draw.Draw(res.ToNRGBA(), image.Rect(0, 0, b.Dx(), b.Dy()), img, b.Min, draw.Src)
	return res
}

// Returns a Go image sharing the pixel buffer
func (f *Image) ToNRGBA() *image.NRGBA {
	return &image.NRGBA{Pix: f.Pix, Stride: 4 * f.Width, Rect: image.Rect(0, 0, f.Width, f.Height)}
}

// Returns a deep copy
func (f *Image) Clone() *Image {
	res := *f
	res.Pix = append([]byte(nil), f.Pix...)
	return &res
}

func (f *Image) DimensionsToString() string {
	return fmt.Sprintf("%dx%d", f.Width, f.Height)
}

// Export file name for a background-removed image: <base>_nobg.png
func ExportName(fileName string) string {
	base := strings.TrimSuffix(filepath.Base(fileName), filepath.Ext(fileName))
	if fileName == "" || base == "" || base == "." || base == string(filepath.Separator) {
		base = "image"
	}
	return base + "_nobg.png"
}

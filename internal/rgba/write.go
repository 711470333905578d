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
	"bufio"
	"errors"
	"fmt"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	colorful "github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// Output container formats
type Format int

const (
	FormatPNG Format = iota
	FormatTIFF
	FormatBMP
	FormatJPEG
)

// Selects the output format from the file name suffix
func FormatFromFileName(fileName string) (Format, error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".png":
		return FormatPNG, nil
	case ".tif", ".tiff":
		return FormatTIFF, nil
	case ".bmp":
		return FormatBMP, nil
	case ".jpg", ".jpeg":
		return FormatJPEG, nil
	}
	return FormatPNG, errors.New(fmt.Sprintf("unknown image suffix in '%s'", fileName))
}

// Write the image to the given file, format by suffix. PNG, TIFF and BMP keep the alpha channel.
// JPEG has none, so the image is composited over the given background first.
func (f *Image) WriteFile(fileName string, background colorful.Color, quality int) error {
	format, err := FormatFromFileName(fileName)
	if err != nil {
		return err
	}

	file, err := os.Create(fileName)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	if err := f.Write(writer, format, background, quality); err != nil {
		return err
	}
	return writer.Flush()
}

// Write the image to the given writer in the given format
func (f *Image) Write(writer io.Writer, format Format, background colorful.Color, quality int) error {
	switch format {
	case FormatPNG:
		return png.Encode(writer, f.ToNRGBA())
	case FormatTIFF:
		return tiff.Encode(writer, f.ToNRGBA(), &tiff.Options{Compression: tiff.Deflate, Predictor: true})
	case FormatBMP:
		return bmp.Encode(writer, f.ToNRGBA())
	case FormatJPEG:
		return jpeg.Encode(writer, f.Composite(background).ToNRGBA(), &jpeg.Options{Quality: quality})
	}
	return errors.New(fmt.Sprintf("unknown output format %d", int(format)))
}

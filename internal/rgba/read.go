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
	"fmt"
	"image"
	"io"
	"os"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Reads an image from the file with the given name. Format is detected from the content:
// PNG, JPEG, GIF, BMP, TIFF or WebP. Images without alpha channel come out fully opaque
func NewImageFromFile(fileName string, id int) (*Image, error) {
	f, err := os.Open(fileName)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, err := Decode(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("%d: decoding %s: %w", id, fileName, err)
	}
	img.ID, img.FileName = id, fileName
	return img, nil
}

// Decodes an image from the given reader
func Decode(r io.Reader) (*Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, err
	}
	return NewImageFromGoImage(img), nil
}

// Reads only the dimensions and format name of the image in the given file
func ReadConfig(fileName string) (width, height int, format string, err error) {
	f, err := os.Open(fileName)
	if err != nil {
		return 0, 0, "", err
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(bufio.NewReader(f))
	if err != nil {
		return 0, 0, "", fmt.Errorf("reading header of %s: %w", fileName, err)
	}
	return cfg.Width, cfg.Height, format, nil
}

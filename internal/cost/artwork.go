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


package cost

import (
	"fmt"

	"github.com/google/uuid"
)

// A matted artwork queued for printing
type Artwork struct {
	ID           uuid.UUID `json:"id"`
	FileName     string    `json:"fileName"`
	WidthInches  float64   `json:"widthInches"`
	HeightInches float64   `json:"heightInches"`
}

func NewArtwork(fileName string, widthInches, heightInches float64) *Artwork {
	return &Artwork{
		ID:           uuid.New(),
		FileName:     fileName,
		WidthInches:  widthInches,
		HeightInches: heightInches,
	}
}

// Creates an artwork sized from pixel dimensions at the given dpi
func NewArtworkFromPixels(fileName string, widthPx, heightPx int, dpi float64) *Artwork {
	return NewArtwork(fileName, PixelsToInches(widthPx, dpi), PixelsToInches(heightPx, dpi))
}

func (a *Artwork) Cost() float64 {
	return Cost(a.HeightInches, a.WidthInches)
}

func (a *Artwork) String() string {
	return fmt.Sprintf("%s %.2fx%.2fin %s", a.FileName, a.WidthInches, a.HeightInches, FormatINR(a.Cost()))
}

// An ordered collection of artworks. Totals are recomputed on demand, never cached
type Batch struct {
	Artworks []*Artwork `json:"artworks"`
}

func (b *Batch) Add(a *Artwork) {
	b.Artworks = append(b.Artworks, a)
}

// Removes the artwork with the given id. Returns false if no such artwork exists
func (b *Batch) Remove(id uuid.UUID) bool {
	for i, a := range b.Artworks {
		if a.ID == id {
			b.Artworks = append(b.Artworks[:i], b.Artworks[i+1:]...)
			return true
		}
	}
	return false
}

func (b *Batch) Find(id uuid.UUID) *Artwork {
	for _, a := range b.Artworks {
		if a.ID == id {
			return a
		}
	}
	return nil
}

func (b *Batch) Total() float64 {
	total := 0.0
	for _, a := range b.Artworks {
		total += a.Cost()
	}
	return total
}

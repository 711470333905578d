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


// Package alpha wraps the matte filters as JSON-configurable operators.
package alpha

import (
	"encoding/json"
	"fmt"

	"github.com/mlnoga/mattelight/internal/matte"
	"github.com/mlnoga/mattelight/internal/ops"
	"github.com/mlnoga/mattelight/internal/rgba"
	"github.com/mlnoga/mattelight/internal/stats"
)

// Snaps mask alpha towards the local extremum, removing speckle noise
type OpRefine struct {
	ops.OpUnaryBase
	Radius int `json:"radius"`
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpRefineDefault() }) } // register the operator for JSON decoding

func NewOpRefineDefault() *OpRefine { return NewOpRefine(matte.DefaultRefineRadius) }

func NewOpRefine(radius int) *OpRefine {
	op := OpRefine{
		OpUnaryBase: ops.OpUnaryBase{OpBase: ops.OpBase{Type: "refine", Active: true}},
		Radius:      radius,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return &op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpRefine) UnmarshalJSON(data []byte) error {
	type defaults OpRefine
	def := defaults(*NewOpRefineDefault())
	if err := json.Unmarshal(data, &def); err != nil {
		return err
	}
	*op = OpRefine(def)
	op.OpUnaryBase.Apply = op.Apply // make method receiver point to op, not def
	return nil
}

func (op *OpRefine) Apply(f *rgba.Image, c *ops.Context) (result *rgba.Image, err error) {
	pix, err := matte.RefineWith(f.Pix, f.Width, f.Height, matte.RefineParams{Radius: op.Radius, Threads: c.FilterThreads})
	if err = checkWarning(f, err, c); err != nil {
		return nil, err
	}
	fmt.Fprintf(c.Log, "%d: Refined mask with radius %d\n", f.ID, op.Radius)
	return withPix(f, pix), nil
}

// Box-blurs the alpha channel into a soft-edged matte
type OpSmooth struct {
	ops.OpUnaryBase
	Radius int                `json:"radius"`
	Border matte.BorderPolicy `json:"border"`
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpSmoothDefault() }) } // register the operator for JSON decoding

func NewOpSmoothDefault() *OpSmooth { return NewOpSmooth(matte.DefaultBoxRadius, matte.BorderPreserve) }

func NewOpSmooth(radius int, border matte.BorderPolicy) *OpSmooth {
	op := OpSmooth{
		OpUnaryBase: ops.OpUnaryBase{OpBase: ops.OpBase{Type: "smooth", Active: true}},
		Radius:      radius,
		Border:      border,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return &op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpSmooth) UnmarshalJSON(data []byte) error {
	type defaults OpSmooth
	def := defaults(*NewOpSmoothDefault())
	if err := json.Unmarshal(data, &def); err != nil {
		return err
	}
	*op = OpSmooth(def)
	op.OpUnaryBase.Apply = op.Apply // make method receiver point to op, not def
	return nil
}

func (op *OpSmooth) Apply(f *rgba.Image, c *ops.Context) (result *rgba.Image, err error) {
	p := matte.SmoothParams{Radius: op.Radius, Border: op.Border, Threads: c.FilterThreads}
	pix, err := matte.SmoothWith(f.Pix, f.Width, f.Height, p)
	if err = checkWarning(f, err, c); err != nil {
		return nil, err
	}
	fmt.Fprintf(c.Log, "%d: Smoothed matte with box radius %d, %v border\n", f.ID, op.Radius, op.Border)
	return withPix(f, pix), nil
}

// Runs refine and smooth as one operation, always in that order
type OpMatte struct {
	ops.OpUnaryBase
	RefineRadius int                `json:"refineRadius"`
	BoxRadius    int                `json:"boxRadius"`
	Border       matte.BorderPolicy `json:"border"`
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpMatteDefault() }) } // register the operator for JSON decoding

func NewOpMatteDefault() *OpMatte {
	return NewOpMatte(matte.DefaultRefineRadius, matte.DefaultBoxRadius, matte.BorderPreserve)
}

func NewOpMatte(refineRadius, boxRadius int, border matte.BorderPolicy) *OpMatte {
	op := OpMatte{
		OpUnaryBase:  ops.OpUnaryBase{OpBase: ops.OpBase{Type: "matte", Active: true}},
		RefineRadius: refineRadius,
		BoxRadius:    boxRadius,
		Border:       border,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return &op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpMatte) UnmarshalJSON(data []byte) error {
	type defaults OpMatte
	def := defaults(*NewOpMatteDefault())
	if err := json.Unmarshal(data, &def); err != nil {
		return err
	}
	*op = OpMatte(def)
	op.OpUnaryBase.Apply = op.Apply // make method receiver point to op, not def
	return nil
}

func (op *OpMatte) Apply(f *rgba.Image, c *ops.Context) (result *rgba.Image, err error) {
	rp := matte.RefineParams{Radius: op.RefineRadius, Threads: c.FilterThreads}
	sp := matte.SmoothParams{Radius: op.BoxRadius, Border: op.Border, Threads: c.FilterThreads}
	pix, err := matte.Apply(f.Pix, f.Width, f.Height, rp, sp)
	if err = checkWarning(f, err, c); err != nil {
		return nil, err
	}
	fmt.Fprintf(c.Log, "%d: Matted with refine radius %d, box radius %d, %v border\n",
		f.ID, op.RefineRadius, op.BoxRadius, op.Border)
	return withPix(f, pix), nil
}

// Logs alpha statistics and passes the image through unchanged
type OpStats struct {
	ops.OpUnaryBase
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpStats() }) } // register the operator for JSON decoding

func NewOpStats() *OpStats {
	op := OpStats{OpUnaryBase: ops.OpUnaryBase{OpBase: ops.OpBase{Type: "stats", Active: true}}}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return &op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpStats) UnmarshalJSON(data []byte) error {
	type defaults OpStats
	def := defaults(*NewOpStats())
	if err := json.Unmarshal(data, &def); err != nil {
		return err
	}
	*op = OpStats(def)
	op.OpUnaryBase.Apply = op.Apply // make method receiver point to op, not def
	return nil
}

func (op *OpStats) Apply(f *rgba.Image, c *ops.Context) (result *rgba.Image, err error) {
	fmt.Fprintf(c.Log, "%d: %v\n", f.ID, stats.NewAlphaStats(f.Pix))
	return f, nil
}

// Builds the standard job: load all matching files (which logs their statistics), matte,
// log statistics of the result and save. A nil save operator skips saving
func NewOpMatteJob(filePatterns []string, m *OpMatte, save *ops.OpSave) *ops.OpSequence {
	seq := ops.NewOpSequence(ops.NewOpLoadMany(filePatterns), m, NewOpStats())
	if save != nil {
		seq.Append(save)
	}
	return seq
}

// Logs degenerate radius warnings and clears them. Other errors are returned with the image id
func checkWarning(f *rgba.Image, err error, c *ops.Context) error {
	if err == nil {
		return nil
	}
	if matte.IsDegenerate(err) {
		fmt.Fprintf(c.Log, "%d: Warning: %s\n", f.ID, err.Error())
		return nil
	}
	return fmt.Errorf("%d: %w", f.ID, err)
}

func withPix(f *rgba.Image, pix []byte) *rgba.Image {
	return &rgba.Image{ID: f.ID, FileName: f.FileName, Width: f.Width, Height: f.Height, Pix: pix}
}

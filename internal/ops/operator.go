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



package ops

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"runtime"
	"strings"
	"github.com/pbnjay/memory"
	"github.com/mlnoga/mattelight/internal/rgba"
	"github.com/mlnoga/mattelight/internal/stats"
)

// An execution context for operators
type Context struct {
	Log              io.Writer
	MemoryMB         int          // memory.TotalMemory()/1024/1024
	WorkMemoryMB     int          // MemoryMB*7/10
	MaxThreads       int          `json:"maxThreads"`    // images materialized concurrently
	FilterThreads    int          `json:"filterThreads"` // row stripes per image processed concurrently
}

func NewContext(log io.Writer) *Context {
	memoryMB:=int(memory.TotalMemory()/1024/1024)
	return &Context{
		Log           : log,
		MemoryMB      : memoryMB,
		WorkMemoryMB  : memoryMB*7/10,
		MaxThreads    : runtime.GOMAXPROCS(0),
		FilterThreads : runtime.GOMAXPROCS(0),
	}
}

// Bytes held per pixel while an image is in flight: the decoded input, 
// refined and smoothed RGBA copies, and two float32 alpha planes
const bytesPerPixelInFlight=4*3+4*2

// Splits the available threads between images and row stripes for a batch of 
// numImages images of at most the given size, staying within the working memory
func (c *Context) PlanConcurrency(numImages, maxWidth, maxHeight int) {
	threads:=runtime.GOMAXPROCS(0)
	images:=threads
	if numImages<images { images=numImages }
	if mbPerImage:=maxWidth*maxHeight*bytesPerPixelInFlight/1024/1024+1; c.WorkMemoryMB>0 {
		if byMemory:=c.WorkMemoryMB/mbPerImage; byMemory<images { images=byMemory }
	}
	if images<1 { images=1 }
	c.MaxThreads   =images
	c.FilterThreads=threads/images
	if c.FilterThreads<1 { c.FilterThreads=1 }
}

// Number of pixels a single image may have to be processed within the working memory.
// Zero working memory means the size is unknown, and every image is accepted
func (c *Context) MaxPixels() int64 {
	if c.WorkMemoryMB<=0 { return math.MaxInt64 }
	return int64(c.WorkMemoryMB)*1024*1024/bytesPerPixelInFlight
}

// Returns true if an image of the given size can be processed within the working memory
func (c *Context) FitsInMemory(width, height int) bool {
	return int64(width)*int64(height)<=c.MaxPixels()
}

// A promise for an RGBA image. Returns a materialized image, or an error
type Promise func() (f *rgba.Image, err error)

// Materializes all promises with given concurrency limit
func MaterializeAll(ins []Promise, maxThreads int, forget bool) (outs []*rgba.Image, err error) {
	if len(ins)==0 { return nil, nil }
	if maxThreads<1 { maxThreads=1 }
	if(!forget) {
		outs    =make([]*rgba.Image, len(ins))
	}
	limiter:=make(chan bool, maxThreads)
	errs   :=make(chan error, len(ins))
	for i, in := range(ins) {
		limiter <- true 
		go func(i int, theIn Promise) {
			defer func() { <-limiter }()
			f, err:=theIn() // materialize the promise
			if err!=nil {
				errs <- err 
				return
			}
			if(!forget) {
				outs[i]=f
			}
			errs <- nil
		}(i, in)
	}
	for i:=0; i<cap(limiter); i++ {  // wait for goroutines to finish
		limiter <- true
	}
	var all []error
	for i:=0; i<len(ins); i++ {  // collect errors
		if e:=<-errs; e!=nil { all=append(all, e) }
	}
	return RemoveNils(outs), errors.Join(all...)
}

// Remove nils from an array of images, editing the underlying array in place
func RemoveNils(images []*rgba.Image) ([]*rgba.Image) {
	o:=0
	for i:=0; i<len(images); i+=1 {
		if images[i]!=nil {
			images[o]=images[i]
			o+=1
		}
	}
	for i:=o; i<len(images); i++ {
		images[i]=nil
	}
	return images[:o]	
}


// An general image processing operator: takes n promises as inputs, 
// and produces m promises as output or an error
type Operator interface {
	GetType() string
	IsActive() bool
	MakePromises(ins []Promise, c *Context) (outs []Promise, err error)
}

// Base type for operators, including type information for JSON serializing/deserializing
type OpBase struct {
	Type        string `json:"type"`
	Active      bool   `json:"active"`
}

func (op *OpBase) GetType() string { return op.Type }
func (op *OpBase) IsActive() bool { return op.Active }

// Factory method for subclasses of unary operators. For JSON serializing/deserializing
type OperatorFactory func() Operator

// Mapping from unary operator type strings to factory method for the type 
var operatorFactories=map[string]OperatorFactory{}

// Returns the operator factory for a given type string
func GetOperatorFactory(t string) OperatorFactory {
	return operatorFactories[t]
}

// Registers a given type string for a given type of UnaryOperator, identified via an exemplar generator
func SetOperatorFactory(f OperatorFactory) {
	op:=f()
	t:=op.GetType()
	if GetOperatorFactory(t)!=nil { panic(fmt.Sprintf("error: re-registering operator key %s\n", t))}
	operatorFactories[t]=f
}

// Decodes a single polymorphic operator from raw JSON, using the type field to pick the factory
func UnmarshalOperator(raw []byte) (Operator, error) {
	var base OpBase
	if err:=json.Unmarshal(raw, &base); err!=nil { return nil, err }
	factory:=GetOperatorFactory(base.Type)
	if factory==nil {
		return nil, fmt.Errorf("Unknown operator type '%s' in raw JSON message '%s'", base.Type, string(raw))
	}
	op:=factory()
	if err:=json.Unmarshal(raw, op); err!=nil { return nil, err }
	return op, nil
}


// A unary image processing operator: given n promises as inputs, 
// applies itself to each of them individually and returns n output promises or an error
type OperatorUnary interface {
	Operator
	Apply(f *rgba.Image, c *Context) (fOut *rgba.Image, err error)
}

// Abstract base type for unary operators. Uses golang workaround for abstract classes
// from https://golangbyexample.com/go-abstract-class/
type OpUnaryBase struct {
	OpBase
	Apply func(f *rgba.Image, c *Context) (fOut *rgba.Image, err error) `json:"-"`
}

// Inactive unary operators pass their inputs through unchanged
func (op *OpUnaryBase) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	if len(ins)==0 { return nil, fmt.Errorf("%s operator with %d inputs", op.Type, len(ins)) }
	if !op.Active { return ins, nil }
	outs=make([]Promise, len(ins))
	for i,in:=range(ins) {
		outs[i]=op.MakePromise(in, c)
	}
	return outs, nil
}

func (op *OpUnaryBase) MakePromise(in Promise, c *Context) (out Promise) {
	return func() (f *rgba.Image, err error) {
		if f, err=in();          err!=nil { return nil, err } // materialize input promise
		if f, err=op.Apply(f,c); err!=nil { return nil, err } // apply unary operator
		return f, nil                                         // wrap output in promise
	}
}

// Load a single image from a single filename. Takes zero inputs, produces one output
type OpLoad struct {
	OpBase
	ID 		    int     `json:"id"`
	FileName    string  `json:"fileName"`
}

func init() { SetOperatorFactory(func() Operator { return NewOpLoadDefault()}) } // register the operator for JSON decoding

func NewOpLoadDefault() *OpLoad { return NewOpLoad(0, "") }

func NewOpLoad(id int, fileName string) *OpLoad {
	return &OpLoad{
		OpBase : OpBase{Type: "load", Active: true},
		ID : id,
		FileName : fileName,
	}
}

// Load image from a file. Ignores any f argument provided
func (op *OpLoad) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	if len(ins)>0 { return nil, fmt.Errorf("%s operator with non-zero input", op.Type) }
	if !IsPathAllowed(op.FileName) { return nil, errors.New("Filename outside current directory tree, aborting") }

	out:=func() (f *rgba.Image, err error) {
		// no inputs to materialize
		return op.Apply(nil, c)
	}
	return []Promise{out}, nil
}

// Returns true if a path is considered safe, i.e. not an absolute path,
// and doesn't contain the ".." characters to change to a parent directory 
func IsPathAllowed(p string) bool {
	if filepath.IsAbs(p) { return false }          // relative paths only
	if strings.Contains(p, "..") { return false }  // no going outside the tree
	return true
}

func (op *OpLoad) Apply(f *rgba.Image, c *Context) (result *rgba.Image, err error) {
	f, err=rgba.NewImageFromFile(op.FileName, op.ID)
	if err!=nil { return nil, err }

	s:=stats.NewAlphaStats(f.Pix)
	warning:=""
	if s.Partial==0 && (s.Transparent==0 || s.Opaque==0) {
		warning="; WARNING uniform alpha, image carries no mask"
	}

	fmt.Fprintf(c.Log, "%d: Loaded %s image with %v from %s%s\n", 
		        f.ID, f.DimensionsToString(), s, f.FileName, warning)
	return f, nil		
}

// Load many images from a slice of filename patterns with wildcards.
// Takes zero inputs, produces n outputs
type OpLoadMany struct {
	OpBase
	FilePatterns []string `json:"filePatterns"`
}

func init() { SetOperatorFactory(func() Operator { return NewOpLoadManyDefault()}) } // register the operator for JSON decoding

func NewOpLoadManyDefault() *OpLoadMany { return NewOpLoadMany(nil) }

func NewOpLoadMany(filePatterns []string) *OpLoadMany {
	return &OpLoadMany{
		OpBase : OpBase{Type: "loadMany", Active: true},
		FilePatterns : filePatterns,
	}
}

// Turn filename wildcards into list of file load operators, and plan concurrency 
// based on the largest image dimensions found in the file headers
func (op *OpLoadMany) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	if len(ins)>0 { return nil, fmt.Errorf("%s operator with non-zero input", op.Type) }
	maxWidth, maxHeight:=0, 0
	for _, pattern := range op.FilePatterns {
		matches, err := filepath.Glob(pattern)
		if err!=nil { return nil, err }
		for _,match:=range(matches) {
			if !IsPathAllowed(match) { 
				fmt.Fprintf(c.Log, "Pattern match outside current directory tree, skipping\n")
				continue
			}
			w, h, _, err:=rgba.ReadConfig(match)
			if err!=nil { 
				fmt.Fprintf(c.Log, "%d: Skipping %s: %s\n", len(outs), match, err.Error())
				continue
			}
			if !c.FitsInMemory(w, h) {
				fmt.Fprintf(c.Log, "%d: Skipping %s: %dx%d pixels exceed the working memory of %d MB\n", len(outs), match, w, h, c.WorkMemoryMB)
				continue
			}
			if w>maxWidth  { maxWidth =w }
			if h>maxHeight { maxHeight=h }
			opLoad:=NewOpLoad(len(outs), match)
			promises, err:=opLoad.MakePromises(nil, c)
			if err!=nil { return nil, err }
			if len(promises)!=1 { return nil, fmt.Errorf("%s operator did not return exactly one promise", opLoad.Type) }
			outs=append(outs, promises[0])
		}
	}
	if len(outs)==0 { 
		return nil, fmt.Errorf("%s operator with no files to load from pattern %v", op.Type, op.FilePatterns) 
	}
	c.PlanConcurrency(len(outs), maxWidth, maxHeight)
	fmt.Fprintf(c.Log, "Found %d files, processing %d at a time with %d threads each.\n", len(outs), c.MaxThreads, c.FilterThreads)
	return outs, nil
}


// Saves given promise under a given filename. The pattern expands %d to the image id, and
// %auto to the export name of the input file, placed next to the input if %auto stands alone.
// Takes one input, produces one output (the materialized but unchanged input)
type OpSave struct {
	OpUnaryBase
	FilePattern       string          `json:"filePattern"`
	Background        string          `json:"background"`  // hex colour for formats without alpha
	Quality           int             `json:"quality"`     // JPEG quality
}

func init() { SetOperatorFactory(func() Operator { return NewOpSaveDefault()}) } // register the operator for JSON decoding

func NewOpSaveDefault() *OpSave { return NewOpSave("") }

func NewOpSave(filenamePattern string) *OpSave {
	op:=OpSave{
		OpUnaryBase : OpUnaryBase{OpBase : OpBase{Type: "save", Active: filenamePattern!=""}},
		FilePattern : filenamePattern,
		Background  : "#ffffff",
		Quality     : 95,
	}
	op.OpUnaryBase.Apply=op.Apply // assign class method to superclass abstract method
	return &op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpSave) UnmarshalJSON(data []byte) error {
	type defaults OpSave
	def:=defaults( *NewOpSaveDefault() )
	def.Active=true // a pattern given in JSON activates saving unless switched off explicitly
	err:=json.Unmarshal(data, &def)
	if err!=nil { return err }
	*op=OpSave(def)
	op.OpUnaryBase.Apply=op.Apply // make method point to self after unmarshaling
	return nil
}

// Expands the file pattern for the given image
func (op *OpSave) FileName(f *rgba.Image) string {
	if prefix, ok:=strings.CutSuffix(op.FilePattern, "%auto"); ok {
		if prefix=="" { return filepath.Join(filepath.Dir(f.FileName), rgba.ExportName(f.FileName)) }
		return prefix+rgba.ExportName(f.FileName)
	}
	if strings.Contains(op.FilePattern, "%d") {
		return fmt.Sprintf(op.FilePattern, f.ID)
	}
	return op.FilePattern
}

func (op *OpSave) Apply(f *rgba.Image, c *Context) (result *rgba.Image, err error) {
	if !op.Active || op.FilePattern=="" { return f, nil }
	fileName:=op.FileName(f)

	bg, err:=rgba.ParseBackground(op.Background)
	if err!=nil { return nil, fmt.Errorf("%d: Invalid background '%s': %w", f.ID, op.Background, err) }

	fmt.Fprintf(c.Log,"%d: Writing %s pixel image to %s\n", f.ID, f.DimensionsToString(), fileName)
	if err=f.WriteFile(fileName, bg, op.Quality); err!=nil { 
		return nil, fmt.Errorf("%d: Error writing to file %s: %w", f.ID, fileName, err) 
	}
	return f, nil;	
}


// Applies a sequence of operators to a promise. Number of inputs, outputs as per the chained steps 
type OpSequence struct {
	OpBase
	Steps       []Operator        `json:"-"`      // the actual steps
	StepsRaw    []json.RawMessage `json:"steps"`  // helper for unmarshaling
}

func init() { SetOperatorFactory(func() Operator { return NewOpSequenceDefault()}) } // register the operator for JSON decoding

func NewOpSequenceDefault() *OpSequence { return NewOpSequence() }

func NewOpSequence(steps ...Operator) *OpSequence {
	return &OpSequence{
		OpBase : OpBase{Type: "seq", Active: len(steps)>0},
		Steps  : steps,
	}
}

// Unmarshals a sequence of polymorphic operators from JSON. 
// Uses temporary op.StepsRaw inspired by https://alexkappa.medium.com/json-polymorphism-in-go-4cade1e58ed1
func (op *OpSequence) UnmarshalJSON(b []byte) error {
	type alias OpSequence
	err := json.Unmarshal(b, (*alias)(op))
	if err != nil { return err }

	op.Steps=nil
	for _, raw := range op.StepsRaw {
		step, err:=UnmarshalOperator(raw)
		if err != nil { return err }
		op.Steps = append(op.Steps, step)
	}
	op.StepsRaw=nil
	return nil
}

// Appends one or more operators to the existing sequence
func (op *OpSequence) Append(steps ...Operator) {
	op.Steps=append(op.Steps, steps...)
}

// Marshals a sequence with polymorphic operators to JSON.
// Uses the actual op.Steps with label "steps", and ignores op.StepsRaw
func (op *OpSequence) MarshalJSON() (bs []byte, err error) {
	buf:=bytes.Buffer{}
	buf.WriteString("{\"type\":")
	inner,err:=json.Marshal(op.Type)
	if err!=nil { return nil, err }
	buf.Write(inner)
	fmt.Fprintf(&buf,", \"active\":%v, \"steps\":", op.Active)
	inner,err=json.Marshal(op.Steps)
	if err!=nil { return nil, err }
	buf.Write(inner)
	buf.WriteRune('}')
	return buf.Bytes(), nil
}

func (op *OpSequence) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	return op.applyRecursive(op.Steps, ins, c)
}

func (op *OpSequence) applyRecursive(steps []Operator, ins []Promise, c *Context) (outs []Promise, err error) {
	if len(steps)==0 { return ins, nil }
	ins, err=steps[0].MakePromises(ins, c)
	if err!=nil { return nil, err }
	return op.applyRecursive(steps[1:], ins, c)
}


// Applies a single operator to each input.Takes n inputs, produces n outputs
type OpForEach struct {
	OpBase
	Operation    Operator         `json:"-"`
	OperationRaw json.RawMessage  `json:"operation"` // helper for unmarshaling
}

func init() { SetOperatorFactory(func() Operator { return NewOpForEachDefault()}) } // register the operator for JSON decoding

func NewOpForEachDefault() *OpForEach { return NewOpForEach(nil) }

func NewOpForEach(operation Operator) *OpForEach {
	return &OpForEach{
		OpBase : OpBase{Type: "forEach", Active: operation!=nil},
		Operation    : operation, 
	} 
}

// Unmarshals the polymorphic embedded operation from JSON
func (op *OpForEach) UnmarshalJSON(b []byte) error {
	type alias OpForEach
	if err:=json.Unmarshal(b, (*alias)(op)); err!=nil { return err }
	op.Operation=nil
	if len(op.OperationRaw)>0 && string(op.OperationRaw)!="null" {
		operation, err:=UnmarshalOperator(op.OperationRaw)
		if err!=nil { return err }
		op.Operation=operation
	}
	op.OperationRaw=nil
	return nil
}

func (op *OpForEach) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type      string   `json:"type"`
		Active    bool     `json:"active"`
		Operation Operator `json:"operation"`
	}{op.Type, op.Active, op.Operation})
}

// Applies the embedded operation to each input individually
func (op *OpForEach) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	if len(ins)==0 { return ins, nil }
	if op.Operation==nil { return nil, fmt.Errorf("%s operator has no operation to apply", op.Type)}
	for _,in:=range(ins) {
		out, err:=op.Operation.MakePromises([]Promise{in}, c)
		if err!=nil { return nil, err }
		if len(out)!=1 { return nil, fmt.Errorf("%s operator needs exactly one promise from embedded operation", op.Type)}
		outs=append(outs, out[0])
	}
	return outs, nil
}

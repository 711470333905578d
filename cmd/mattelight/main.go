
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"strings"
	"time"
	nl "github.com/mlnoga/mattelight/internal"
	"github.com/mlnoga/mattelight/internal/cost"
	"github.com/mlnoga/mattelight/internal/matte"
	"github.com/mlnoga/mattelight/internal/ops"
	"github.com/mlnoga/mattelight/internal/ops/alpha"
	"github.com/mlnoga/mattelight/internal/rest"
	"github.com/mlnoga/mattelight/internal/rgba"
)

const version = "0.1.0"

var cpuprofile = flag.String("cpuprofile", "", "write cpu profile to `file`")
var memprofile = flag.String("memprofile", "", "write memory profile to `file`")

var out  = flag.String("out", "%auto", "save mattes to `file` pattern. %d expands to the image id, %auto to <name>_nobg.png next to the input")
var log  = flag.String("log", "%auto", "save log output to `file`. `%auto` replaces suffix of a fixed output file with .log")

var refineRadius = flag.Int("refineRadius", matte.DefaultRefineRadius, "extremum snap filter radius in pixels, 0=no op")
var boxRadius    = flag.Int("boxRadius",    matte.DefaultBoxRadius,    "box blur radius in pixels, 0=no op")
var border       = flag.String("border",    "preserve", "box blur border pixels: preserve keeps alpha, zero clears it")
var bg           = flag.String("bg",        "#ffffff", "background colour for output formats without alpha, as hex code")
var quality      = flag.Int("quality",      95, "JPEG output quality")
var threads      = flag.Int("threads",      0, "number of threads, 0=auto")

var job  = flag.String("job", "", "run the operator sequence from JSON `file`")
var dpi  = flag.Float64("dpi", cost.DefaultDPI, "print resolution for converting pixel dimensions to inches")

var synthWidth  = flag.Int("synthWidth",  512, "width of synthetic masks")
var synthHeight = flag.Int("synthHeight", 512, "height of synthetic masks")
var synthSeed   = flag.Int("synthSeed",   1, "random seed for synthetic masks")
var synthNoise  = flag.Float64("synthNoise", 0.02, "fraction of speckled pixels in synthetic masks")

var addr   = flag.String("addr", ":8080", "listen on `address` when serving")
var chroot = flag.String("chroot", "", "chroot into `dir` before serving, requires root")
var setuid = flag.Int("setuid", -1, "change to user `id` before serving, -1=don't")

func main() {
	logWriter:=nl.LogWriter()
	start:=time.Now()
	flag.Usage=func(){
		fmt.Fprintf(logWriter, `Mattelight Copyright (c) 2020 Markus L. Noga
This program comes with ABSOLUTELY NO WARRANTY.
This is free software, and you are welcome to redistribute it under certain conditions.
Refer to https://www.gnu.org/licenses/gpl-3.0.en.html for details.

Usage: %s [-flag value] (matte|stats|cost|synth|job|serve|legal|version|help) (img0.png ... imgn.png)

Commands:
  matte   Refine and smooth the alpha masks of the input images
  stats   Show alpha statistics of the input images
  cost    Show print cost of the input images at the given dpi
  synth   Write a synthetic speckled mask to each given file name
  job     Run the operator sequence given with -job on the input images
  serve   Serve the upload page and REST API
  legal   Show license and attribution information
  version Show version information

Flags:
`, os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	// Initialize logging to file in addition to stdout, if selected
	if *log=="%auto" {
		if *out!="" && !strings.Contains(*out, "%") {
			*log=strings.TrimSuffix(*out, filepath.Ext(*out))+".log"			
		} else {
			*log=""
		}
	}
	if *log!="" { 
		err:=nl.LogAlsoToFile(*log)
		if err!=nil { nl.LogFatalf("Unable to open logfile '%s'\n", *log) }
	}

	// Enable CPU profiling if flagged
	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			nl.LogFatal("Could not create CPU profile: ", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			nl.LogFatal("Could not start CPU profile: ", err)
		}
		defer pprof.StopCPUProfile()
	}

	args:=flag.Args()
	if len(args)<1 {
		flag.Usage()
		return
	}

	c:=ops.NewContext(logWriter)

	// run actions
	var err error
	switch args[0] {
	case "matte":
		err=cmdMatte(args[1:], c)

	case "stats":
		err=cmdStats(args[1:], c)

	case "cost":
		err=cmdCost(args[1:], logWriter)

	case "synth":
		err=cmdSynth(args[1:], logWriter)

	case "job":
		err=cmdJob(*job, args[1:], c)

	case "serve":
		if err=rest.MakeSandbox(*chroot, *setuid); err==nil {
			err=rest.Serve(*addr)
		}

	case "legal":
		fmt.Fprint(logWriter, legal)

	case "version":
		fmt.Fprintf(logWriter, "Version %s\n", version)

	case "help", "?":
		flag.Usage()

	default:
		fmt.Fprintf(logWriter, "Unknown command '%s'\n\n", args[0])
		flag.Usage()
		return 
	}

	now:=time.Now()
	elapsed:=now.Sub(start)
	fmt.Fprintf(logWriter, "\nDone after %v\n", elapsed)

	// Store memory profile if flagged
	if *memprofile != "" {
		f, err := os.Create(*memprofile)
		if err != nil {
			nl.LogFatal("Could not create memory profile: ", err)
		}
		defer f.Close()
		runtime.GC() // get up-to-date statistics
		if err := pprof.Lookup("allocs").WriteTo(f,0); err != nil {
			nl.LogFatal("Could not write allocation profile: ", err)
		}
	}

	if err!=nil {
		nl.LogFatalf("Error: %s\n", err.Error())
	}
	nl.LogSync()
}

// Applies the thread flag, if given, after the load operator has planned concurrency
func applyThreads(c *ops.Context) {
	if *threads>0 {
		c.MaxThreads, c.FilterThreads=*threads, 1
	}
}

// Builds the operator sequence for the matte command from the flags, and runs it
func cmdMatte(args []string, c *ops.Context) error {
	borderPolicy, err:=matte.ParseBorderPolicy(*border)
	if err!=nil { return err }
	if _, err:=rgba.ParseBackground(*bg); err!=nil { return fmt.Errorf("invalid background '%s': %w", *bg, err) }

	opSave:=ops.NewOpSave(*out)
	opSave.Background, opSave.Quality=*bg, *quality
	seq:=alpha.NewOpMatteJob(args, alpha.NewOpMatte(*refineRadius, *boxRadius, borderPolicy), opSave)

	m, err:=json.MarshalIndent(seq, "", "  ")
	if err!=nil { return err }
	fmt.Fprintf(c.Log, "Matting with these settings:\n%s\n\n", string(m))
	return runSequence(seq, c)
}

// Loads the input images, which logs their alpha statistics once each
func cmdStats(args []string, c *ops.Context) error {
	return runSequence(ops.NewOpSequence(ops.NewOpLoadMany(args)), c)
}

// Loads an operator sequence from a JSON file. File name arguments, if any, are loaded in front of it
func cmdJob(fileName string, args []string, c *ops.Context) error {
	if fileName=="" { return fmt.Errorf("job command needs a -job file") }
	bs, err:=os.ReadFile(fileName)
	if err!=nil { return err }
	seq:=ops.NewOpSequence()
	if err=json.Unmarshal(bs, seq); err!=nil { return fmt.Errorf("parsing %s: %w", fileName, err) }
	if len(args)>0 {
		seq.Steps=append([]ops.Operator{ops.NewOpLoadMany(args)}, seq.Steps...)
	}
	return runSequence(seq, c)
}

func runSequence(seq *ops.OpSequence, c *ops.Context) error {
	promises, err:=seq.MakePromises(nil, c)
	if err!=nil { return err }
	applyThreads(c)
	_, err=ops.MaterializeAll(promises, c.MaxThreads, true)
	return err
}

// Prices each input image by its pixel dimensions at the dpi flag
func cmdCost(args []string, logWriter io.Writer) error {
	batch:=cost.Batch{}
	for _, pattern:=range args {
		matches, err:=filepath.Glob(pattern)
		if err!=nil { return err }
		for _, match:=range matches {
			w, h, _, err:=rgba.ReadConfig(match)
			if err!=nil { return err }
			batch.Add(cost.NewArtworkFromPixels(match, w, h, *dpi))
		}
	}
	if len(batch.Artworks)==0 { return fmt.Errorf("no images to price from %v", args) }
	for i, a:=range batch.Artworks {
		fmt.Fprintf(logWriter, "%d: %v\n", i, a)
	}
	fmt.Fprintf(logWriter, "Total %s for %d artworks at %g dpi\n", cost.FormatINR(batch.Total()), len(batch.Artworks), *dpi)
	return nil
}

// Writes a synthetic mask to each given file name, with consecutive seeds
func cmdSynth(args []string, logWriter io.Writer) error {
	bgColor, err:=rgba.ParseBackground(*bg)
	if err!=nil { return err }
	for i, fileName:=range args {
		img:=rgba.NewSpeckledMask(*synthWidth, *synthHeight, uint32(*synthSeed+i), float32(*synthNoise))
		fmt.Fprintf(logWriter, "%d: Writing %s pixel synthetic mask to %s\n", i, img.DimensionsToString(), fileName)
		if err:=img.WriteFile(fileName, bgColor, *quality); err!=nil { return err }
	}
	return nil
}

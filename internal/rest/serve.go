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



package rest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"net/http"
	"github.com/gin-gonic/gin"

	"github.com/mlnoga/mattelight/internal/cost"
	"github.com/mlnoga/mattelight/internal/matte"
	"github.com/mlnoga/mattelight/internal/ops"
	"github.com/mlnoga/mattelight/internal/ops/alpha"
	"github.com/mlnoga/mattelight/internal/rgba"
	"github.com/mlnoga/mattelight/web"
)


// Memory budget for uploads, which are decoded in full before matting
var limits = ops.NewContext(io.Discard)

// Creates the HTTP router with the upload page and the REST API
func NewRouter() *gin.Engine {
	r := gin.Default()
	r.GET("/", getIndex)
	api := r.Group("/api")
	{
		v1 := api.Group("/v1")
		{
			v1.GET ("/ping",    getPing)
			v1.POST("/matte",   postMatte)
			v1.POST("/cost",    postCost)
			v1.POST("/job",     postJob)
		}
	}
	return r
}

// Listens and serves on the given address, e.g. :8080
func Serve(addr string) error {
	return NewRouter().Run(addr)
}

func getIndex(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", web.IndexHTML)
}

func getPing(c *gin.Context) {
	c.JSON(200, gin.H{
		"message": "pong",
	})
}

func printArgs(logWriter io.Writer, prefix, suffix string, args interface{}) error {
	m,err:=json.MarshalIndent(args, "", "  ")
	if err!=nil { return err }
	fmt.Fprintf(logWriter, "%s%s%s", prefix, string(m), suffix)
	return nil
}


type postMatteArgs struct {
	RefineRadius int    `form:"refineRadius,default=1"`
	BoxRadius    int    `form:"boxRadius,default=2"`
	Border       string `form:"border"`
}

// Mattes a single uploaded image and returns it as PNG attachment
func postMatte(c *gin.Context) {
	var args postMatteArgs
	if err:=c.ShouldBind(&args); err!=nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error() } )
		return
	}
	border, err:=matte.ParseBorderPolicy(args.Border)
	if err!=nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error() } )
		return
	}
	header, err:=c.FormFile("image")
	if err!=nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing image: "+err.Error() } )
		return
	}
	file, err:=header.Open()
	if err!=nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error() } )
		return
	}
	defer file.Close()

	// check the declared dimensions before decoding allocates any pixels
	cfg, _, err:=image.DecodeConfig(file)
	if err!=nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "decoding "+header.Filename+": "+err.Error() } )
		return
	}
	if !limits.FitsInMemory(cfg.Width, cfg.Height) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("image of %dx%d pixels exceeds the limit of %d pixels", cfg.Width, cfg.Height, limits.MaxPixels()) } )
		return
	}
	if _, err:=file.Seek(0, io.SeekStart); err!=nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error() } )
		return
	}
	img, err:=rgba.Decode(file)
	if err!=nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "decoding "+header.Filename+": "+err.Error() } )
		return
	}

	rp:=matte.RefineParams{Radius: args.RefineRadius}
	sp:=matte.SmoothParams{Radius: args.BoxRadius, Border: border}
	pix, err:=matte.Apply(img.Pix, img.Width, img.Height, rp, sp)
	if err!=nil && !matte.IsDegenerate(err) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error() } )
		return
	}
	if err!=nil {
		c.Header("X-Matte-Warning", fmt.Sprintf("%q", err.Error()))
	}
	img.Pix=pix

	buf:=bytes.Buffer{}
	if err:=img.Write(&buf, rgba.FormatPNG, rgba.White, 0); err!=nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error() } )
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", rgba.ExportName(header.Filename)))
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}


type postCostArgs struct {
	DPI       float64           `json:"dpi"`
	Artworks  []postCostArtwork `json:"artworks"`
}

// Artwork size in inches, or in pixels if either inch dimension is missing
type postCostArtwork struct {
	FileName     string  `json:"fileName"`
	WidthInches  float64 `json:"widthInches"`
	HeightInches float64 `json:"heightInches"`
	WidthPx      int     `json:"widthPx"`
	HeightPx     int     `json:"heightPx"`
}

type costLine struct {
	*cost.Artwork
	Cost          float64 `json:"cost"`
	CostFormatted string  `json:"costFormatted"`
}

// Prices a batch of artworks
func postCost(c *gin.Context) {
	var args postCostArgs
	if err:=c.ShouldBindJSON(&args); err!=nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error() } )
		return
	}

	batch:=cost.Batch{}
	for _,a:=range args.Artworks {
		if a.WidthInches>0 && a.HeightInches>0 {
			batch.Add(cost.NewArtwork(a.FileName, a.WidthInches, a.HeightInches))
		} else {
			batch.Add(cost.NewArtworkFromPixels(a.FileName, a.WidthPx, a.HeightPx, args.DPI))
		}
	}

	lines:=make([]costLine, len(batch.Artworks))
	for i,a:=range batch.Artworks {
		lines[i]=costLine{Artwork: a, Cost: a.Cost(), CostFormatted: cost.FormatINR(a.Cost())}
	}
	total:=batch.Total()
	c.JSON(http.StatusOK, gin.H{
		"artworks"       : lines,
		"total"          : total,
		"totalFormatted" : cost.FormatINR(total),
	})
}


type postJobArgs struct {
	FilePatterns []string       `json:"filePatterns"`
	Matte        *alpha.OpMatte `json:"matte"`
	Save         *ops.OpSave    `json:"save"`
}

// Mattes files from the server's working tree, streaming the log as plain text
func postJob(c *gin.Context) {
	var args postJobArgs
	if err:=c.ShouldBindJSON(&args); err!=nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error() } )
		return
	}
	if args.Matte==nil { args.Matte=alpha.NewOpMatteDefault() }
	if args.Save!=nil && !ops.IsPathAllowed(args.Save.FilePattern) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "save pattern outside current directory tree" } )
		return
	}

	logWriter := ops.NewSyncWriter(c.Writer)
	header := c.Writer.Header()
	header.Set("Content-Type", "text/plain")
	c.Writer.WriteHeader(http.StatusOK)

	if err:=printArgs(logWriter, "Arguments:\n", "\n", args); err!=nil {
		fmt.Fprintf(logWriter, "Error printing arguments: %s\n", err.Error())
		return
	}

	ctx:=ops.NewContext(logWriter)
	job:=alpha.NewOpMatteJob(args.FilePatterns, args.Matte, args.Save)
	promises, err:=job.MakePromises(nil, ctx)
	if err!=nil {
		fmt.Fprintf(logWriter, "error: %s\n", err.Error())
		return
	}
	if _, err=ops.MaterializeAll(promises, ctx.MaxThreads, true); err!=nil {
		fmt.Fprintf(logWriter, "error: %s\n", err.Error())	
	}
	c.Writer.Flush()
}

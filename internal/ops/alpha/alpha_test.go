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


package alpha

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/mlnoga/mattelight/internal/matte"
	"github.com/mlnoga/mattelight/internal/ops"
	"github.com/mlnoga/mattelight/internal/rgba"
)

func testContext() (*ops.Context, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return ops.NewContext(ops.NewSyncWriter(buf)), buf
}

func TestOpMatteMatchesPipeline(t *testing.T) {
	c, log := testContext()
	f := rgba.NewSpeckledMask(40, 30, 3, 0.05)
	f.ID = 4
	res, err := NewOpMatteDefault().Apply(f, c)
	if err != nil {
		t.Fatal(err)
	}
	want, err := matte.ApplyDefault(f.Pix, f.Width, f.Height)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, res.Pix); diff != "" {
		t.Errorf("(-pipeline +operator):\n%s", diff)
	}
	if res.ID != 4 || res.Width != 40 || res.Height != 30 {
		t.Errorf("result id=%d dims=%s; want 4, 40x30", res.ID, res.DimensionsToString())
	}
	if !strings.Contains(log.String(), "4: Matted with refine radius 1, box radius 2, preserve border") {
		t.Errorf("log=%q", log.String())
	}
}

func TestRefineThenSmoothEqualsMatte(t *testing.T) {
	c, _ := testContext()
	f := rgba.NewSpeckledMask(25, 25, 5, 0.1)
	seq := ops.NewOpSequence(NewOpRefine(1), NewOpSmooth(2, matte.BorderZero))
	promises, err := seq.MakePromises([]ops.Promise{func() (*rgba.Image, error) { return f, nil }}, c)
	if err != nil {
		t.Fatal(err)
	}
	outs, err := ops.MaterializeAll(promises, 1, false)
	if err != nil {
		t.Fatal(err)
	}
	combined, err := NewOpMatte(1, 2, matte.BorderZero).Apply(f, c)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(combined.Pix, outs[0].Pix); diff != "" {
		t.Errorf("(-matte +refine,smooth):\n%s", diff)
	}
}

func TestDegenerateRadiusIsLogged(t *testing.T) {
	c, log := testContext()
	f := rgba.NewSpeckledMask(4, 4, 1, 0)
	res, err := NewOpSmooth(2, matte.BorderPreserve).Apply(f, c)
	if err != nil {
		t.Fatalf("degenerate radius aborted: %v", err)
	}
	if diff := cmp.Diff(f.Pix, res.Pix); diff != "" {
		t.Errorf("degenerate preserve smooth changed pixels:\n%s", diff)
	}
	if !strings.Contains(log.String(), "Warning: smooth radius 2") {
		t.Errorf("log=%q; want degenerate warning", log.String())
	}

	if _, err := NewOpRefine(-1).Apply(f, c); err == nil {
		t.Errorf("negative radius accepted")
	}
}

func TestOperatorJSONDefaults(t *testing.T) {
	js := `{"type":"seq","steps":[
		{"type":"refine"},
		{"type":"smooth","radius":3,"border":"zero"},
		{"type":"matte","boxRadius":4},
		{"type":"stats"}
	]}`
	var seq ops.OpSequence
	if err := json.Unmarshal([]byte(js), &seq); err != nil {
		t.Fatal(err)
	}
	if len(seq.Steps) != 4 {
		t.Fatalf("%d steps; want 4", len(seq.Steps))
	}
	r := seq.Steps[0].(*OpRefine)
	if r.Radius != 1 || !r.Active || r.OpUnaryBase.Apply == nil {
		t.Errorf("refine radius=%d active=%v; want defaults", r.Radius, r.Active)
	}
	s := seq.Steps[1].(*OpSmooth)
	if s.Radius != 3 || s.Border != matte.BorderZero {
		t.Errorf("smooth radius=%d border=%v; want 3 zero", s.Radius, s.Border)
	}
	m := seq.Steps[2].(*OpMatte)
	if m.RefineRadius != 1 || m.BoxRadius != 4 || m.Border != matte.BorderPreserve {
		t.Errorf("matte %d/%d/%v; want 1/4/preserve", m.RefineRadius, m.BoxRadius, m.Border)
	}
	if _, ok := seq.Steps[3].(*OpStats); !ok {
		t.Errorf("step 3=%#v; want stats", seq.Steps[3])
	}

	if err := json.Unmarshal([]byte(`{"type":"smooth","border":"mirror"}`), NewOpSmoothDefault()); err == nil {
		t.Errorf("unknown border policy accepted")
	}
}

func TestMatteJob(t *testing.T) {
	dir := t.TempDir()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(old)

	if err := os.Mkdir("in", 0755); err != nil {
		t.Fatal(err)
	}
	src := rgba.NewSpeckledMask(32, 24, 8, 0.05)
	if err := src.WriteFile("in/logo.png", rgba.White, 0); err != nil {
		t.Fatal(err)
	}

	c, log := testContext()
	job := NewOpMatteJob([]string{"in/*.png"}, NewOpMatteDefault(), ops.NewOpSave("%auto"))
	promises, err := job.MakePromises(nil, c)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ops.MaterializeAll(promises, c.MaxThreads, true); err != nil {
		t.Fatal(err)
	}

	out, err := rgba.NewImageFromFile("in/logo_nobg.png", 0)
	if err != nil {
		t.Fatalf("matte not saved: %v\n%s", err, log.String())
	}
	want, _ := matte.ApplyDefault(src.Pix, src.Width, src.Height)
	if diff := cmp.Diff(want, out.Pix); diff != "" {
		t.Errorf("saved matte differs (-want +got):\n%s", diff)
	}
	if n := strings.Count(log.String(), "alpha mean"); n != 2 {
		t.Errorf("%d stats lines; want before and after\n%s", n, log.String())
	}
}

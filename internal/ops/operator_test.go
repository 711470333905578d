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
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mlnoga/mattelight/internal/rgba"
)

// Changes into dir for the duration of the test, as load operators only accept relative paths
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(old) })
}

func testContext() (*Context, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return NewContext(NewSyncWriter(buf)), buf
}

func TestMaterializeAll(t *testing.T) {
	ins := []Promise{}
	for i := 0; i < 5; i++ {
		id := i
		ins = append(ins, func() (*rgba.Image, error) {
			if id == 2 {
				return nil, errors.New("two failed")
			}
			f := rgba.NewImage(1, 1)
			f.ID = id
			return f, nil
		})
	}
	outs, err := MaterializeAll(ins, 2, false)
	if err == nil || !strings.Contains(err.Error(), "two failed") {
		t.Errorf("err=%v; want two failed", err)
	}
	if len(outs) != 4 {
		t.Fatalf("len(outs)=%d; want 4", len(outs))
	}
	for i, want := range []int{0, 1, 3, 4} {
		if outs[i].ID != want {
			t.Errorf("outs[%d].ID=%d; want %d", i, outs[i].ID, want)
		}
	}

	outs, err = MaterializeAll(ins[:2], 8, true)
	if err != nil || len(outs) != 0 {
		t.Errorf("forget: len=%d err=%v; want 0, nil", len(outs), err)
	}
}

func TestRemoveNils(t *testing.T) {
	a, b := rgba.NewImage(1, 1), rgba.NewImage(2, 2)
	got := RemoveNils([]*rgba.Image{nil, a, nil, nil, b})
	if len(got) != 2 || got[0] != a || got[1] != b {
		t.Errorf("RemoveNils=%v; want [a b]", got)
	}
}

func TestIsPathAllowed(t *testing.T) {
	tcs := []struct {
		path string
		want bool
	}{
		{"in/logo.png", true},
		{"*.png", true},
		{"/etc/passwd", false},
		{"../secret.png", false},
		{"a/../../b.png", false},
	}
	for _, tc := range tcs {
		if got := IsPathAllowed(tc.path); got != tc.want {
			t.Errorf("IsPathAllowed(%q)=%v; want %v", tc.path, got, tc.want)
		}
	}
}

func TestPlanConcurrency(t *testing.T) {
	c, _ := testContext()
	c.WorkMemoryMB = 1000
	c.PlanConcurrency(1, 100, 100)
	if c.MaxThreads != 1 || c.FilterThreads < 1 {
		t.Errorf("single image: %d images, %d threads; want 1 image", c.MaxThreads, c.FilterThreads)
	}

	c.WorkMemoryMB = 1
	c.PlanConcurrency(100, 8000, 8000)
	if c.MaxThreads != 1 {
		t.Errorf("memory bound: %d images; want 1", c.MaxThreads)
	}
}

func TestOpSaveFileName(t *testing.T) {
	f := rgba.NewImage(1, 1)
	f.ID, f.FileName = 7, filepath.Join("in", "logo.jpg")
	tcs := []struct{ pattern, want string }{
		{"%auto", filepath.Join("in", "logo_nobg.png")},
		{"out/%auto", "out/logo_nobg.png"},
		{"matte%03d.png", "matte007.png"},
		{"fixed.png", "fixed.png"},
	}
	for _, tc := range tcs {
		if got := NewOpSave(tc.pattern).FileName(f); got != tc.want {
			t.Errorf("FileName(%q)=%q; want %q", tc.pattern, got, tc.want)
		}
	}
}

func TestOpSaveInactivePassesThrough(t *testing.T) {
	c, _ := testContext()
	f := rgba.NewImage(1, 1)
	res, err := NewOpSave("").Apply(f, c)
	if err != nil || res != f {
		t.Errorf("inactive save returned %v, %v; want input, nil", res, err)
	}
}

func TestLoadSaveSequence(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	for i, name := range []string{"a.png", "b.png"} {
		if err := rgba.NewSpeckledMask(16, 12, uint32(i), 0.1).WriteFile(name, rgba.White, 0); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile("junk.png", []byte("not an image"), 0644); err != nil {
		t.Fatal(err)
	}

	c, log := testContext()
	seq := NewOpSequence(NewOpLoadMany([]string{"*.png"}), NewOpSave("out%d.jpg"))
	promises, err := seq.MakePromises(nil, c)
	if err != nil {
		t.Fatal(err)
	}
	if len(promises) != 2 {
		t.Fatalf("%d promises; want 2 (junk skipped)", len(promises))
	}
	if _, err := MaterializeAll(promises, c.MaxThreads, true); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"out0.jpg", "out1.jpg"} {
		if _, err := os.Stat(name); err != nil {
			t.Errorf("%s not written: %v", name, err)
		}
	}
	if !strings.Contains(log.String(), "Found 2 files") || !strings.Contains(log.String(), "Skipping junk.png") {
		t.Errorf("log missing load lines:\n%s", log.String())
	}
}

func TestLoadRejectsOutsidePaths(t *testing.T) {
	c, _ := testContext()
	if _, err := NewOpLoad(0, "/etc/passwd").MakePromises(nil, c); err == nil {
		t.Errorf("absolute path accepted")
	}
	if _, err := NewOpLoad(0, "a.png").MakePromises([]Promise{nil}, c); err == nil {
		t.Errorf("load with input accepted")
	}
}

func TestSequenceJSON(t *testing.T) {
	js := `{"type":"seq","active":true,"steps":[
		{"type":"loadMany","active":true,"filePatterns":["in/*.png"]},
		{"type":"forEach","active":true,"operation":{"type":"save","filePattern":"%auto"}}
	]}`
	var seq OpSequence
	if err := json.Unmarshal([]byte(js), &seq); err != nil {
		t.Fatal(err)
	}
	if len(seq.Steps) != 2 {
		t.Fatalf("%d steps; want 2", len(seq.Steps))
	}
	lm, ok := seq.Steps[0].(*OpLoadMany)
	if !ok || len(lm.FilePatterns) != 1 || lm.FilePatterns[0] != "in/*.png" {
		t.Errorf("step 0=%#v; want loadMany in/*.png", seq.Steps[0])
	}
	fe, ok := seq.Steps[1].(*OpForEach)
	if !ok {
		t.Fatalf("step 1=%#v; want forEach", seq.Steps[1])
	}
	save, ok := fe.Operation.(*OpSave)
	if !ok {
		t.Fatalf("forEach operation=%#v; want save", fe.Operation)
	}
	if save.Background != "#ffffff" || save.Quality != 95 || save.FilePattern != "%auto" {
		t.Errorf("save defaults bg=%s quality=%d pattern=%s", save.Background, save.Quality, save.FilePattern)
	}
	if save.OpUnaryBase.Apply == nil {
		t.Errorf("save apply not wired after unmarshal")
	}

	bs, err := json.Marshal(&seq)
	if err != nil {
		t.Fatal(err)
	}
	var again OpSequence
	if err := json.Unmarshal(bs, &again); err != nil {
		t.Fatalf("re-decoding %s: %v", bs, err)
	}
	if len(again.Steps) != 2 {
		t.Errorf("re-decoded %d steps; want 2", len(again.Steps))
	}

	if err := json.Unmarshal([]byte(`{"type":"seq","steps":[{"type":"nope"}]}`), &OpSequence{}); err == nil {
		t.Errorf("unknown operator type accepted")
	}
}

func TestFitsInMemory(t *testing.T) {
	c, _ := testContext()
	c.WorkMemoryMB = 1
	if n := c.MaxPixels(); n != 1024*1024/bytesPerPixelInFlight {
		t.Errorf("MaxPixels=%d; want %d", n, 1024*1024/bytesPerPixelInFlight)
	}
	if !c.FitsInMemory(100, 100) || c.FitsInMemory(1000, 1000) {
		t.Errorf("1 MB budget: 100x100 and 1000x1000 misjudged")
	}
	if c.FitsInMemory(1<<31-1, 1<<31-1) {
		t.Errorf("maximal dimensions accepted")
	}
	c.WorkMemoryMB = 0
	if !c.FitsInMemory(60000, 60000) {
		t.Errorf("unknown memory size rejected image")
	}
}

func TestLoadManySkipsOversizedImages(t *testing.T) {
	chdir(t, t.TempDir())
	if err := rgba.NewSpeckledMask(16, 12, 1, 0).WriteFile("small.png", rgba.White, 0); err != nil {
		t.Fatal(err)
	}
	if err := rgba.NewSpeckledMask(300, 300, 2, 0).WriteFile("large.png", rgba.White, 0); err != nil {
		t.Fatal(err)
	}
	c, log := testContext()
	c.WorkMemoryMB = 1 // 52428 pixels
	promises, err := NewOpLoadMany([]string{"*.png"}).MakePromises(nil, c)
	if err != nil {
		t.Fatal(err)
	}
	if len(promises) != 1 {
		t.Errorf("%d promises; want 1", len(promises))
	}
	if !strings.Contains(log.String(), "Skipping large.png: 300x300 pixels exceed") {
		t.Errorf("log:\n%s", log.String())
	}
}

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


package matte

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/valyala/fastrand"
)

// RGBA buffer with the given alpha values and a recognizable RGB pattern
func bufferFromAlpha(alpha []byte) []byte {
	buf := make([]byte, len(alpha)*4)
	for i, a := range alpha {
		buf[i*4+0] = byte(i)
		buf[i*4+1] = byte(i * 7)
		buf[i*4+2] = byte(255 - i)
		buf[i*4+3] = a
	}
	return buf
}

func uniformAlpha(n int, v byte) []byte {
	alpha := make([]byte, n)
	for i := range alpha {
		alpha[i] = v
	}
	return alpha
}

func alphaOf(buf []byte) []byte {
	alpha := make([]byte, len(buf)/4)
	for i := range alpha {
		alpha[i] = buf[i*4+3]
	}
	return alpha
}

func randomBuffer(rng *fastrand.RNG, width, height int) []byte {
	buf := make([]byte, width*height*4)
	for i := range buf {
		buf[i] = byte(rng.Uint32n(256))
	}
	return buf
}

// Literal per-pixel rendition of the snap rule, with the window clipped to the image interior
func refineReference(in []byte, w, h, radius int) []byte {
	out := append([]byte(nil), in...)
	for y := radius; y < h-radius; y++ {
		for x := radius; x < w-radius; x++ {
			maxA, minA := 0, 255
			for dy := -radius; dy <= radius; dy++ {
				for dx := -radius; dx <= radius; dx++ {
					a := int(in[((y+dy)*w+(x+dx))*4+3])
					if a > maxA {
						maxA = a
					}
					if a < minA {
						minA = a
					}
				}
			}
			i := (y*w+x)*4 + 3
			a := int(in[i])
			if a < 128 {
				if minA+40 < a {
					a = minA + 40
				}
			} else if maxA-40 > a {
				a = maxA - 40
			}
			out[i] = byte(a)
		}
	}
	return out
}

func TestRefineScenarioAOpaque(t *testing.T) {
	in := bufferFromAlpha(uniformAlpha(25, 255))
	out, err := Refine(in, 5, 5, 1)
	if err != nil {
		t.Fatalf("err=%v; want nil", err)
	}
	for i, a := range alphaOf(out) {
		if a != 255 {
			t.Errorf("alpha[%d]=%d; want 255", i, a)
		}
	}
}

func TestRefineScenarioBIsolatedBrightPixel(t *testing.T) {
	alpha := uniformAlpha(25, 0)
	alpha[2*5+2] = 200
	in := bufferFromAlpha(alpha)

	out, err := Refine(in, 5, 5, 1)
	if err != nil {
		t.Fatalf("err=%v; want nil", err)
	}
	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("isolated pixel changed (-want +got):\n%s", diff)
	}
}

func TestRefineFlatRegionIsNoOp(t *testing.T) {
	for _, v := range []byte{0, 1, 39, 40, 127, 128, 200, 254} {
		in := bufferFromAlpha(uniformAlpha(9*7, v))
		for radius := 0; radius <= 3; radius++ {
			out, err := Refine(in, 9, 7, radius)
			if err != nil {
				t.Fatalf("v=%d radius=%d err=%v; want nil", v, radius, err)
			}
			if diff := cmp.Diff(in, out); diff != "" {
				t.Errorf("v=%d radius=%d flat region changed (-want +got):\n%s", v, radius, diff)
			}
		}
	}
}

func TestRefineSnapsTowardsExtremum(t *testing.T) {
	// 3x3 with a single interior pixel at the center
	tcs := []struct {
		center, neighbor, want byte
	}{
		{100, 0, 40},    // below threshold, far above local min: pulled down to min+40
		{30, 0, 30},     // below threshold, within tolerance of local min: unchanged
		{130, 255, 215}, // above threshold, far below local max: pulled up to max-40
		{220, 255, 220}, // within tolerance of local max: unchanged
		{128, 0, 128},   // threshold belongs to the upper branch, center is the max
		{127, 255, 127}, // lower branch, center is the min
	}
	for _, tc := range tcs {
		alpha := uniformAlpha(9, tc.neighbor)
		alpha[4] = tc.center
		out, err := Refine(bufferFromAlpha(alpha), 3, 3, 1)
		if err != nil {
			t.Fatalf("err=%v; want nil", err)
		}
		if got := out[4*4+3]; got != tc.want {
			t.Errorf("center=%d neighbor=%d got %d; want %d", tc.center, tc.neighbor, got, tc.want)
		}
		for i, a := range alphaOf(out) {
			if i != 4 && a != tc.neighbor {
				t.Errorf("center=%d border alpha[%d]=%d; want %d", tc.center, i, a, tc.neighbor)
			}
		}
	}
}

func TestRefineMatchesReference(t *testing.T) {
	rng := fastrand.RNG{}
	rng.Seed(42)
	for _, dims := range [][2]int{{17, 13}, {64, 5}, {5, 64}, {31, 31}} {
		w, h := dims[0], dims[1]
		in := randomBuffer(&rng, w, h)
		for radius := 0; radius <= 3; radius++ {
			if 2*radius+1 > w || 2*radius+1 > h {
				continue
			}
			want := refineReference(in, w, h, radius)
			got, err := Refine(in, w, h, radius)
			if err != nil {
				t.Fatalf("%dx%d radius=%d err=%v", w, h, radius, err)
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("%dx%d radius=%d (-want +got):\n%s", w, h, radius, diff)
			}
		}
	}
}

func TestRefineDirectEqualsSeparable(t *testing.T) {
	rng := fastrand.RNG{}
	rng.Seed(7)
	w, h := 41, 29
	in := randomBuffer(&rng, w, h)
	for r := 1; r <= 5; r++ {
		direct := append([]byte(nil), in...)
		separable := append([]byte(nil), in...)
		refineRowsDirect(direct, in, w, r, r, h-r)
		refineRowsSeparable(separable, in, w, r, r, h-r)
		if diff := cmp.Diff(direct, separable); diff != "" {
			t.Errorf("radius=%d (-direct +separable):\n%s", r, diff)
		}
	}
}

func TestRefineIndependentOfThreads(t *testing.T) {
	rng := fastrand.RNG{}
	rng.Seed(3)
	w, h := 80, 300
	in := randomBuffer(&rng, w, h)
	want, err := RefineWith(in, w, h, RefineParams{Radius: 2, Threads: 1})
	if err != nil {
		t.Fatal(err)
	}
	saved := stripeBytes
	stripeBytes = 1 // one row per stripe
	defer func() { stripeBytes = saved }()
	for _, threads := range []int{2, 3, 8, 0} {
		got, err := RefineWith(in, w, h, RefineParams{Radius: 2, Threads: threads})
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("threads=%d (-want +got):\n%s", threads, diff)
		}
	}
}

func TestRefineBorderAndRGBUntouched(t *testing.T) {
	rng := fastrand.RNG{}
	rng.Seed(11)
	w, h, r := 23, 19, 2
	in := randomBuffer(&rng, w, h)
	orig := append([]byte(nil), in...)
	out, err := Refine(in, w, h, r)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(orig, in); diff != "" {
		t.Errorf("input modified (-orig +now):\n%s", diff)
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := (y*w + x) * 4
			for c := 0; c < 3; c++ {
				if out[i+c] != in[i+c] {
					t.Errorf("(%d,%d) channel %d=%d; want %d", x, y, c, out[i+c], in[i+c])
				}
			}
			border := x < r || y < r || x >= w-r || y >= h-r
			if border && out[i+3] != in[i+3] {
				t.Errorf("border (%d,%d) alpha=%d; want %d", x, y, out[i+3], in[i+3])
			}
		}
	}
}

func TestRefineInvalidBuffer(t *testing.T) {
	tcs := []struct {
		w, h, n int
	}{
		{5, 5, 99}, {5, 5, 101}, {0, 5, 0}, {5, -1, 0}, {-2, -2, 16},
	}
	for _, tc := range tcs {
		out, err := Refine(make([]byte, tc.n), tc.w, tc.h, 1)
		var be *InvalidBufferError
		if !errors.As(err, &be) {
			t.Errorf("%dx%d len %d err=%v; want InvalidBufferError", tc.w, tc.h, tc.n, err)
		}
		if out != nil {
			t.Errorf("%dx%d len %d returned a buffer; want nil", tc.w, tc.h, tc.n)
		}
	}
}

func TestRefineInvalidRadius(t *testing.T) {
	in := bufferFromAlpha(uniformAlpha(25, 9))
	out, err := Refine(in, 5, 5, -1)
	var pe *InvalidParameterError
	if !errors.As(err, &pe) || pe.Degenerate {
		t.Errorf("err=%v; want non-degenerate InvalidParameterError", err)
	}
	if out != nil {
		t.Errorf("negative radius returned a buffer; want nil")
	}
}

func TestRefineDegenerateRadius(t *testing.T) {
	alpha := []byte{0, 255, 0, 100, 50, 100}
	in := bufferFromAlpha(alpha)
	out, err := Refine(in, 3, 2, 1)
	if !IsDegenerate(err) {
		t.Errorf("err=%v; want degenerate warning", err)
	}
	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("degenerate refine changed pixels (-want +got):\n%s", diff)
	}
}

func TestRefineHugeRadiusIsDegenerate(t *testing.T) {
	in := bufferFromAlpha(uniformAlpha(25, 200))
	huge := math.MaxInt/2 + 1
	out, err := Refine(in, 5, 5, huge)
	if !IsDegenerate(err) {
		t.Fatalf("radius %d: err=%v; want degenerate warning", huge, err)
	}
	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("huge radius changed pixels (-want +got):\n%s", diff)
	}
	if _, err := Refine(in, 5, 5, math.MaxInt); !IsDegenerate(err) {
		t.Errorf("radius MaxInt: err=%v; want degenerate warning", err)
	}
}

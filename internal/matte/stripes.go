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
	"runtime"

	"github.com/klauspost/cpuid"
)

// Bytes of input a stripe should touch, so the window rows of a stripe stay cache resident
var stripeBytes = cacheBudget()

func cacheBudget() int {
	if l2 := cpuid.CPU.Cache.L2; l2 > 0 {
		return l2 / 2
	}
	return 128 * 1024
}

// Number of output rows per stripe, given the bytes read per output row. At least minRows
func stripeRows(bytesPerRow, minRows int) int {
	rows := minRows
	if bytesPerRow > 0 && stripeBytes/bytesPerRow > rows {
		rows = stripeBytes / bytesPerRow
	}
	return rows
}

// Calls fn on disjoint, consecutive row ranges [start,end) covering [from,to),
// running at most threads calls concurrently. Returns when all calls have finished.
func forEachStripe(from, to, rows, threads int, fn func(start, end int)) {
	if to <= from {
		return
	}
	if threads <= 0 {
		threads = runtime.GOMAXPROCS(0)
	}
	if rows < 1 {
		rows = 1
	}
	if threads == 1 || to-from <= rows {
		fn(from, to)
		return
	}

	limiter := make(chan bool, threads)
	for start := from; start < to; start += rows {
		end := start + rows
		if end > to {
			end = to
		}
		limiter <- true
		go func(start, end int) {
			defer func() { <-limiter }()
			fn(start, end)
		}(start, end)
	}
	for i := 0; i < cap(limiter); i++ { // wait for goroutines to finish
		limiter <- true
	}
}

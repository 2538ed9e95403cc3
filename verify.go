// Copyright 2026 The Heap-Allocator Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Structural auditing of the heap.

package heap

import (
	"fmt"
	"unsafe"
)

// Stats records the state of an Allocator. It is filled by Verify, if
// successful.
type Stats struct {
	BreakBytes   int // committed break region bytes, top included
	TopBytes     int // size of the wilderness chunk
	InuseChunks  int // chunks held by the client, mapped chunks excluded
	InuseBytes   int
	FreeChunks   int // chunks sitting in bins
	FreeBytes    int
	MappedChunks int
	MappedBytes  int
}

// Verify audits the complete allocator state: it walks the break region chunk
// by chunk checking sizes, boundary tags and flags, cross checks every free
// chunk against the bin table, and accounts for all mapped regions. It
// returns a Stats summary, or an error describing the first inconsistency
// found. A nil error means every structural invariant of the heap holds.
func (a *Allocator) Verify() (s Stats, err error) {
	free := map[*mchunk]bool{}
	if a.top != nil {
		base := a.brk.base()
		end := unsafe.Add(base, a.brk.brk)
		s.BreakBytes = int(a.brk.brk)
		prevFree, prevSize := false, uintptr(0)
		for c := (*mchunk)(base); ; c = c.next() {
			sz := c.csize()
			switch {
			case sz%mallocAlign != 0:
				return s, fmt.Errorf("verify: chunk %p: size %#x not a multiple of %d", c, sz, mallocAlign)
			case sz < minChunkSize:
				return s, fmt.Errorf("verify: chunk %p: size %#x below minimum", c, sz)
			case uintptr(unsafe.Pointer(c))+sz > uintptr(end):
				return s, fmt.Errorf("verify: chunk %p: size %#x overruns the break", c, sz)
			case c.mapped():
				return s, fmt.Errorf("verify: chunk %p: mapped flag inside the break region", c)
			}
			if c == (*mchunk)(base) {
				if c.prevFree() {
					return s, fmt.Errorf("verify: chunk %p: first chunk claims a free left neighbor", c)
				}
			} else {
				if c.prevFree() != prevFree {
					return s, fmt.Errorf("verify: chunk %p: prev-inuse flag disagrees with left neighbor", c)
				}
				if prevFree && c.prevSize != prevSize {
					return s, fmt.Errorf("verify: chunk %p: prevSize %#x, left neighbor has size %#x", c, c.prevSize, prevSize)
				}
			}
			if c == a.top {
				if unsafe.Add(unsafe.Pointer(c), sz) != end {
					return s, fmt.Errorf("verify: top %p does not reach the break", c)
				}
				if c.inuse() {
					return s, fmt.Errorf("verify: top %p has the inuse flag", c)
				}
				s.TopBytes = int(sz)
				break
			}
			switch {
			case c.inuse():
				s.InuseChunks++
				s.InuseBytes += int(sz)
				prevFree = false
			case prevFree:
				return s, fmt.Errorf("verify: chunk %p: two adjacent free chunks", c)
			default:
				s.FreeChunks++
				s.FreeBytes += int(sz)
				free[c] = true
				prevFree = true
			}
			prevSize = sz
		}
	}

	seen := 0
	for i, c := range a.bins {
		for prev := (*mchunk)(nil); c != nil; prev, c = c, c.fd {
			switch {
			case c == a.top:
				return s, fmt.Errorf("verify: bins[%d]: contains the top chunk", i)
			case !free[c]:
				return s, fmt.Errorf("verify: bins[%d]: chunk %p is not a free break region chunk", i, c)
			case binIndex(c.csize()) != i:
				return s, fmt.Errorf("verify: bins[%d]: chunk %p of size %#x belongs in bin %d", i, c, c.csize(), binIndex(c.csize()))
			case c.bk != prev:
				return s, fmt.Errorf("verify: bins[%d]: chunk %p has a broken back link", i, c)
			case prev != nil && prev.csize() > c.csize():
				return s, fmt.Errorf("verify: bins[%d]: chunk %p breaks the size order", i, c)
			}
			seen++
		}
	}
	if seen != len(free) {
		return s, fmt.Errorf("verify: %d free chunks in the break region, %d in bins", len(free), seen)
	}

	for c, b := range a.regs {
		switch {
		case !c.mapped() || !c.inuse():
			return s, fmt.Errorf("verify: mapped chunk %p: bad flags %#x", c, c.size&flagMask)
		case c.csize() != uintptr(len(b)):
			return s, fmt.Errorf("verify: mapped chunk %p: size %#x, region has %#x", c, c.csize(), len(b))
		}
		s.MappedChunks++
		s.MappedBytes += int(c.csize())
	}
	if s.MappedChunks != a.mmaps {
		return s, fmt.Errorf("verify: %d mapped chunks, counter says %d", s.MappedChunks, a.mmaps)
	}
	if n := s.InuseChunks + s.MappedChunks; n != a.allocs {
		return s, fmt.Errorf("verify: %d live allocations, counter says %d", n, a.allocs)
	}
	return s, nil
}

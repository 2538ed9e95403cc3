// Copyright 2026 The Heap-Allocator Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package heap implements a malloc-style dynamic memory allocator.
//
// The design follows the classic dlmalloc layout. All client memory is carved
// out of chunks carrying an in-band header with the chunk size and three flag
// bits. A contiguous break region grows monotonically in 32 KiB steps; its
// high end is a single wilderness chunk, the top, from which fresh chunks are
// sliced. Released chunks are coalesced with free address neighbors via
// boundary tags and kept in 123 size-segregated doubly linked free lists, the
// bins. Requests above a threshold bypass all of this and get their own
// anonymous mapping.
//
// The allocator is single threaded and not signal safe. Calloc and Realloc
// are not provided.
package heap

import (
	"fmt"
	"os"
	"unsafe"
)

const (
	trace = false

	mallocAlign   = 16     // payload and chunk size alignment
	heapPage      = 32768  // break extension granularity
	mmapThreshold = 131072 // chunk sizes above this use the mapping path
	brkReserve    = 1 << 30
)

var (
	osPageMask = osPageSize - 1
	osPageSize = os.Getpagesize()
)

// if n%m != 0 { n += m-n%m }. m must be a power of 2.
func roundup(n, m uintptr) uintptr { return (n + m - 1) &^ (m - 1) }

// Allocator allocates and frees memory. Its zero value is ready for use. All
// of the allocator state lives here; methods must not be called concurrently.
type Allocator struct {
	allocs int // # of live allocations
	bytes  int // asked from OS
	mmaps  int // # of live mappings, the break region excluded
	bins   [nBins]*mchunk
	top    *mchunk
	brk    *breakRegion
	regs   map[*mchunk][]byte // mapped chunk -> its region
}

// Malloc allocates size bytes and returns a byte slice over the allocated
// memory. The memory is not initialized. Malloc panics for size < 0. A zero
// size is a valid request and returns an empty slice backed by a minimal
// chunk.
//
// It's ok to reslice the returned slice but the result of appending to it
// cannot be passed to Free as it may refer to a different backing array
// afterwards.
func (a *Allocator) Malloc(size int) (r []byte, err error) {
	if trace {
		defer func() {
			var p *byte
			if cap(r) != 0 {
				p = &r[:1][0]
			}
			fmt.Fprintf(os.Stderr, "Malloc(%#x) %p, %v\n", size, p, err)
		}()
	}
	p, err := a.UnsafeMalloc(size)
	if err != nil {
		return nil, err
	}

	c := chunkOf(p)
	b := unsafe.Slice((*byte)(p), c.csize()-headerSize)
	return b[:size], nil
}

// Free deallocates memory (as in C.free). The argument of Free must have been
// acquired from Malloc. Freeing memory twice is reported as an error.
func (a *Allocator) Free(b []byte) (err error) {
	if trace {
		var p *byte
		if cap(b) != 0 {
			p = &b[:1][0]
		}
		defer func() {
			fmt.Fprintf(os.Stderr, "Free(%p) %v\n", p, err)
		}()
	}
	b = b[:cap(b)]
	if len(b) == 0 {
		return nil
	}

	return a.UnsafeFree(unsafe.Pointer(&b[0]))
}

// UnsafeMalloc is like Malloc except it returns an unsafe.Pointer to the
// payload, which is always 16 byte aligned.
func (a *Allocator) UnsafeMalloc(size int) (r unsafe.Pointer, err error) {
	if size < 0 {
		panic("invalid malloc size")
	}

	m := effectiveSize(uintptr(size))
	if m == 0 {
		return nil, fmt.Errorf("malloc: size out of range: %#x", size)
	}

	if m > mmapThreshold {
		return a.mmapChunk(m)
	}

	if c := a.binFind(m); c != nil {
		c.size |= flagInuse
		c.next().size |= flagPrevInuse
		a.allocs++
		return c.payload(), nil
	}

	if a.top == nil {
		if err = a.createTop(); err != nil {
			return nil, err
		}
	}
	if a.top.csize() < m+minChunkSize {
		if err = a.extendTop(m); err != nil {
			return nil, err
		}
	}
	a.allocs++
	return a.sliceTop(m), nil
}

// UnsafeFree is like Free except its argument is an unsafe.Pointer, which
// must have been acquired from UnsafeMalloc or point at the first byte of a
// slice returned from Malloc. A nil pointer is a no-op.
func (a *Allocator) UnsafeFree(p unsafe.Pointer) (err error) {
	if p == nil {
		return nil
	}

	c := chunkOf(p)
	if _, ok := a.regs[c]; ok {
		return a.unmapChunk(c)
	}

	if a.brk == nil || uintptr(unsafe.Pointer(c)) < uintptr(a.brk.base()) || uintptr(unsafe.Pointer(c)) >= uintptr(a.brk.base())+a.brk.brk {
		return fmt.Errorf("free: unknown chunk %p", p)
	}

	if !c.inuse() {
		return fmt.Errorf("free: chunk %p is not in use", p)
	}

	c.size &^= flagInuse
	a.allocs--
	a.coalesce(c)
	return nil
}

// createTop obtains the break region and places the initial top chunk at its
// base. The top has no chunk below it, so prevSize is zero and the prev-inuse
// flag is set.
func (a *Allocator) createTop() error {
	r, err := newBreakRegion(brkReserve)
	if err != nil {
		return err
	}

	base, err := r.extend(heapPage)
	if err != nil {
		r.release()
		return err
	}

	top := (*mchunk)(base)
	top.prevSize = 0
	top.size = heapPage | flagPrevInuse
	a.top = top
	a.brk = r
	a.bytes += heapPage
	return nil
}

// extendTop grows the break by the least number of heap pages leaving the top
// big enough to slice off need bytes and still remain a valid chunk.
func (a *Allocator) extendTop(need uintptr) error {
	delta := roundup(need+minChunkSize-a.top.csize(), heapPage)
	if _, err := a.brk.extend(delta); err != nil {
		return err
	}

	a.top.setSize(a.top.csize() + delta)
	a.bytes += int(delta)
	return nil
}

// sliceTop carves a chunk of size bytes off the bottom of the top. The caller
// must have ensured the top is big enough. The remainder becomes the new top,
// spanning to the current break.
func (a *Allocator) sliceTop(size uintptr) unsafe.Pointer {
	c := a.top
	rest := c.csize() - size
	c.size = size | c.size&flagPrevInuse | flagInuse
	top := c.next()
	top.prevSize = size
	top.size = rest | flagPrevInuse
	a.top = top
	return c.payload()
}

// coalesce merges a just-freed chunk with free address neighbors and disposes
// of the result: a chunk ending at the top is absorbed into it, anything else
// goes into a bin. Left merge must come first and the top check last so that
// absorption sees the fully merged chunk.
func (a *Allocator) coalesce(c *mchunk) {
	if c.prevSize != 0 && c.prevFree() {
		l := c.prev()
		a.binUnlink(l)
		l.setSize(l.csize() + c.csize())
		c = l
	}
	if r := c.next(); r != a.top && !r.inuse() && !r.mapped() {
		a.binUnlink(r)
		c.setSize(c.csize() + r.csize())
	}
	if c.next() == a.top {
		c.setSize(c.csize() + a.top.csize())
		a.top = c
		return
	}

	r := c.next()
	r.prevSize = c.csize()
	r.size &^= flagPrevInuse
	a.binInsert(c)
}

// mmapChunk serves a request too big for the break region from its own
// anonymous mapping. The stored chunk size is the page rounded mapping size,
// so the release path needs no other bookkeeping. Mapped chunks never enter
// bins and never coalesce.
func (a *Allocator) mmapChunk(size uintptr) (unsafe.Pointer, error) {
	size = roundup(size, uintptr(osPageSize))
	b, err := mapAnon(int(size))
	if err != nil {
		return nil, err
	}

	c := (*mchunk)(unsafe.Pointer(&b[0]))
	c.prevSize = 0
	c.size = size | flagMmap | flagInuse
	if a.regs == nil {
		a.regs = map[*mchunk][]byte{}
	}
	a.regs[c] = b
	a.allocs++
	a.mmaps++
	a.bytes += int(size)
	return c.payload(), nil
}

func (a *Allocator) unmapChunk(c *mchunk) error {
	b, ok := a.regs[c]
	if !ok {
		return fmt.Errorf("free: unknown mapped chunk %p", c)
	}

	delete(a.regs, c)
	a.allocs--
	a.mmaps--
	a.bytes -= int(c.csize())
	return unmapAnon(b)
}

// UnsafeUsableSize reports the payload bytes available at p, which must have
// been returned from UnsafeMalloc. The usable size can be larger than the
// size originally requested because chunks are aligned and bin hits are
// served whole.
func UnsafeUsableSize(p unsafe.Pointer) int {
	if p == nil {
		return 0
	}

	return int(chunkOf(p).csize() - headerSize)
}

// UsableSize is like UnsafeUsableSize except p must point to the first byte
// of a slice returned from Malloc.
func UsableSize(p *byte) int { return UnsafeUsableSize(unsafe.Pointer(p)) }

// Close releases all OS resources used by a and sets it to its zero value.
//
// It's not necessary to Close the Allocator when exiting a process.
func (a *Allocator) Close() (err error) {
	for _, b := range a.regs {
		if e := unmapAnon(b); e != nil && err == nil {
			err = e
		}
	}
	if a.brk != nil {
		if e := a.brk.release(); e != nil && err == nil {
			err = e
		}
	}
	*a = Allocator{}
	return err
}

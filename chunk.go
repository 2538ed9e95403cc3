// Copyright 2026 The Heap-Allocator Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package heap

import (
	"unsafe"
)

const (
	ptrSize      = unsafe.Sizeof(uintptr(0))
	headerSize   = 2 * ptrSize
	minChunkSize = unsafe.Sizeof(mchunk{}) // room for fd/bk once freed

	// Chunk sizes are multiples of 16, the low three bits of the size word
	// carry the flags.
	flagPrevInuse uintptr = 1 << 0 // the chunk below this one is allocated
	flagMmap      uintptr = 1 << 1 // obtained from the mapping path
	flagInuse     uintptr = 1 << 2 // held by the client
	flagMask              = flagPrevInuse | flagMmap | flagInuse
)

// mchunk is the in-band chunk header. Every chunk in the break region and
// every mapped region starts with one. prevSize is valid only while the chunk
// below is free; it then holds that chunk's size and is read by coalescing.
// fd and bk are valid only while the chunk sits in a bin; while the chunk is
// allocated the same bytes are client payload.
type mchunk struct {
	prevSize uintptr
	size     uintptr
	fd, bk   *mchunk
}

func (c *mchunk) csize() uintptr    { return c.size &^ flagMask }
func (c *mchunk) setSize(n uintptr) { c.size = n | c.size&flagMask }
func (c *mchunk) inuse() bool       { return c.size&flagInuse != 0 }
func (c *mchunk) mapped() bool      { return c.size&flagMmap != 0 }
func (c *mchunk) prevFree() bool    { return c.size&flagPrevInuse == 0 }

// next returns the chunk immediately above c. It must not be called on the
// top chunk or on a mapped chunk; neither has an address neighbor.
func (c *mchunk) next() *mchunk {
	return (*mchunk)(unsafe.Add(unsafe.Pointer(c), c.csize()))
}

// prev returns the chunk immediately below c. Valid only while that chunk is
// free, ie. while c.prevFree() holds.
func (c *mchunk) prev() *mchunk {
	return (*mchunk)(unsafe.Add(unsafe.Pointer(c), -int(c.prevSize)))
}

func (c *mchunk) payload() unsafe.Pointer {
	return unsafe.Add(unsafe.Pointer(c), headerSize)
}

func chunkOf(p unsafe.Pointer) *mchunk {
	return (*mchunk)(unsafe.Add(p, -int(headerSize)))
}

// effectiveSize maps a client request to the aligned, header inclusive chunk
// size. A zero request still yields a full minimal chunk. Returns 0 when the
// request exceeds half the address space; anything bigger would overflow the
// header arithmetic or the page rounding on the mapping path.
func effectiveSize(request uintptr) uintptr {
	if request > ^uintptr(0)>>1 {
		return 0
	}

	n := request + headerSize
	if n < minChunkSize {
		n = minChunkSize
	}
	return roundup(n, mallocAlign)
}

// Copyright 2026 The Heap-Allocator Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build unix

package heap

import (
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

// breakRegion emulates the program break. The real brk(2) belongs to the Go
// runtime, so the region is a single anonymous mapping reserved up front with
// brk as the monotone frontier inside it. Pages are committed lazily by the
// OS on first touch; extend only moves the frontier.
type breakRegion struct {
	mem []byte
	brk uintptr
}

func newBreakRegion(reserve int) (*breakRegion, error) {
	b, err := unix.Mmap(-1, 0, reserve, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, err
	}

	if uintptr(unsafe.Pointer(&b[0]))&uintptr(osPageMask) != 0 {
		panic("internal error")
	}

	return &breakRegion{mem: b}, nil
}

func (r *breakRegion) base() unsafe.Pointer { return unsafe.Pointer(&r.mem[0]) }

// extend grows the break by delta bytes and returns the old frontier.
func (r *breakRegion) extend(delta uintptr) (unsafe.Pointer, error) {
	if delta > uintptr(len(r.mem))-r.brk {
		return nil, syscall.ENOMEM
	}

	old := r.brk
	r.brk += delta
	return unsafe.Add(r.base(), old), nil
}

func (r *breakRegion) release() error { return unix.Munmap(r.mem) }

func mapAnon(size int) ([]byte, error) {
	b, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, err
	}

	if uintptr(unsafe.Pointer(&b[0]))&uintptr(osPageMask) != 0 {
		panic("internal error")
	}

	return b, nil
}

func unmapAnon(b []byte) error { return unix.Munmap(b) }

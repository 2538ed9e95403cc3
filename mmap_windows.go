// Copyright 2026 The Heap-Allocator Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package heap

import (
	"os"
	"syscall"
	"unsafe"
)

var (
	modkernel32      = syscall.NewLazyDLL("kernel32.dll")
	procVirtualAlloc = modkernel32.NewProc("VirtualAlloc")
	procVirtualFree  = modkernel32.NewProc("VirtualFree")
)

const (
	memCommit  = 0x1000
	memReserve = 0x2000
	memRelease = 0x8000

	pageReadwrite = 0x04
)

func virtualAlloc(addr, size uintptr, kind, prot uint32) (uintptr, error) {
	r, _, errno := procVirtualAlloc.Call(addr, size, uintptr(kind), uintptr(prot))
	if r == 0 {
		return 0, os.NewSyscallError("VirtualAlloc", errno)
	}

	return r, nil
}

func virtualFree(addr, size uintptr, kind uint32) error {
	r, _, errno := procVirtualFree.Call(addr, size, uintptr(kind))
	if r == 0 {
		return os.NewSyscallError("VirtualFree", errno)
	}

	return nil
}

// breakRegion emulates the program break on top of VirtualAlloc: the address
// range is reserved up front and brk is the monotone frontier inside it.
// Extending the break commits the added range.
type breakRegion struct {
	start uintptr
	size  uintptr
	brk   uintptr
}

func newBreakRegion(reserve int) (*breakRegion, error) {
	base, err := virtualAlloc(0, uintptr(reserve), memReserve, pageReadwrite)
	if err != nil {
		return nil, err
	}

	if base&uintptr(osPageMask) != 0 {
		panic("internal error")
	}

	return &breakRegion{start: base, size: uintptr(reserve)}, nil
}

func (r *breakRegion) base() unsafe.Pointer { return unsafe.Pointer(r.start) }

// extend grows the break by delta bytes and returns the old frontier.
func (r *breakRegion) extend(delta uintptr) (unsafe.Pointer, error) {
	if delta > r.size-r.brk {
		return nil, syscall.ENOMEM
	}

	if _, err := virtualAlloc(r.start+r.brk, delta, memCommit, pageReadwrite); err != nil {
		return nil, err
	}

	old := r.brk
	r.brk += delta
	return unsafe.Pointer(r.start + old), nil
}

func (r *breakRegion) release() error { return virtualFree(r.start, 0, memRelease) }

func mapAnon(size int) ([]byte, error) {
	base, err := virtualAlloc(0, uintptr(size), memReserve|memCommit, pageReadwrite)
	if err != nil {
		return nil, err
	}

	return unsafe.Slice((*byte)(unsafe.Pointer(base)), size), nil
}

func unmapAnon(b []byte) error {
	return virtualFree(uintptr(unsafe.Pointer(&b[0])), 0, memRelease)
}

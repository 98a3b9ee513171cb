package slab

import "unsafe"

// addrOffset returns the byte offset of ptr's first element within
// base's backing array, or a negative/out-of-range value if ptr does
// not point into base. Both slices must share an underlying array for
// a meaningful (non-negative, in-range) result; this is how FreeObject
// locates the slab owning a previously-allocated object without
// storing a back-pointer in a header the caller could corrupt.
func addrOffset(base, ptr []byte) int64 {
	if len(base) == 0 {
		return -1
	}
	baseAddr := uintptr(unsafe.Pointer(&base[0]))
	ptrAddr := uintptr(unsafe.Pointer(&ptr[0]))
	return int64(ptrAddr) - int64(baseAddr)
}

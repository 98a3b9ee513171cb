package jiukun

import "math/bits"

// MaxObjectSize bounds a single named cache's object size.
const MaxObjectSize = 1 << 20 // 1 MiB

// MaxMemorySize bounds a single Alloc request on the general path.
const MaxMemorySize = 1 << 20 // 1 MiB

// minBucketOrder is the smallest size class the general allocator
// will create a dedicated cache for (16 bytes), avoiding a cache per
// tiny allocation size.
const minBucketOrder = 4

// bucketIndex computes, arithmetically rather than via a constant
// table (see SPEC_FULL.md §9), the size-class index for a request of
// n bytes: the exponent of the smallest power of two >= n, floored at
// minBucketOrder.
func bucketIndex(n uint32) uint32 {
	order := uint32(bits.Len32(n - 1))
	if n <= 1 {
		order = 0
	}
	if order < minBucketOrder {
		order = minBucketOrder
	}
	return order
}

// bucketSize returns the actual object size a bucket index backs.
func bucketSize(order uint32) uint32 {
	return uint32(1) << order
}

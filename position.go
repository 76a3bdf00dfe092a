package rcvbuf

// pos is a cell index in [0, capacity), or trapPos meaning "no position".
// Representing positions as plain ring indices (rather than offsets from
// start) keeps the arithmetic below a handful of mod operations; the cost
// is that every comparison between two positions needs an explicit origin
// to resolve wraparound, which is what cmp is for.
type pos int32

// trapPos is the sentinel meaning "no position". It is kept outside
// [0, capacity) for any capacity this buffer accepts (capacity < 2^31), so
// it can never collide with a real cell index.
const trapPos pos = -1

func (p pos) valid() bool { return p != trapPos }

// inc returns the position k steps ahead of p, wrapping modulo capacity.
// k must satisfy 0 <= k < capacity.
func inc(p pos, k int32, capacity int32) pos {
	return pos((int32(p) + k) % capacity)
}

// incOne is inc(p, 1, capacity), the common case.
func incOne(p pos, capacity int32) pos {
	n := p + 1
	if int32(n) == capacity {
		return 0
	}
	return n
}

// dec returns the position one step behind p, wrapping modulo capacity.
func dec(p pos, capacity int32) pos {
	if p == 0 {
		return pos(capacity - 1)
	}
	return p - 1
}

// off returns the number of forward steps from origin to p, in [0, capacity).
// It is the offset representation of p relative to origin, used to compare
// two positions unambiguously across the wrap point.
func off(origin, p pos, capacity int32) int32 {
	d := int32(p) - int32(origin)
	if d < 0 {
		d += capacity
	}
	return d
}

// cmp reports whether a precedes b when both are measured as forward
// distance from origin: -1 if a precedes b, 0 if equal, 1 if a follows b.
func cmp(a, b, origin pos, capacity int32) int {
	oa, ob := off(origin, a, capacity), off(origin, b, capacity)
	switch {
	case oa < ob:
		return -1
	case oa > ob:
		return 1
	default:
		return 0
	}
}

// seqNo is a 31-bit wraparound sequence number. Only the low 31 bits are
// ever significant; bit 31 must stay zero.
type seqNo int32

const seqNoMask int32 = 0x7FFFFFFF

// newSeqNo normalizes a raw value into the 31-bit sequence space.
func newSeqNo(v int32) seqNo {
	return seqNo(v & seqNoMask)
}

// add returns the sequence number n steps ahead of s, wrapping at 2^31.
func (s seqNo) add(n int32) seqNo {
	return newSeqNo(int32(s) + n)
}

// sub computes the signed distance s - other in the 31-bit ring: positive
// when s is ahead of other, negative when behind. The magnitude is only
// meaningful below 2^30; larger gaps are a protocol-level violation the
// caller must have already ruled out (see capacity checks in Insert).
func (s seqNo) sub(other seqNo) int32 {
	diff := (int32(s) - int32(other)) & seqNoMask
	const half = 1 << 30
	if diff >= half {
		diff -= seqNoMask
		diff -= 1
	}
	return diff
}

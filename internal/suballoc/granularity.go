package suballoc

// allocationsConflict reports whether two chunk tags may not share a device
// page under the platform's buffer/image granularity rule. Free chunks never
// conflict with anything; Linear only conflicts with NonLinear and vice
// versa.
func allocationsConflict(a, b AllocationType) bool {
	if a == AllocationTypeFree || b == AllocationTypeFree {
		return false
	}
	return a != b
}

// checkConflictAndAlignUp inspects the occupied chunk physically preceding
// the candidate free chunk (a free gap left by alignment does not shield the
// candidate offset from it). If it is occupied by an incompatible type and shares a
// granularity page with the candidate offset, the offset is bumped up to
// the start of the next page rather than rejected — the previous neighbor
// already has its space, so the only way to keep both allocations apart is
// to move the new one forward. It then checks the chunk physically following
// the candidate free chunk against the (possibly bumped) requested range: a following neighbor
// can't be moved, so a conflict there is rejected outright.
//
// This mirrors vam/granularity.go's CheckConflictAndAlignUp in spirit but
// checks only the two immediate physical neighbors instead of maintaining a
// persistent per-page occupancy table, per the simpler granularity model
// this package implements.
func checkConflictAndAlignUp(granularity uint64, offset uint64, size uint64, typ AllocationType, prev, next *chunk) (newOffset uint64, ok bool) {
	if granularity <= 1 {
		return offset, true
	}

	if prev != nil && !prev.isFree() {
		prevEndPage := (prev.offset + prev.size - 1) / granularity
		candidatePage := offset / granularity
		if prevEndPage == candidatePage && allocationsConflict(prev.typ, typ) {
			offset = (candidatePage + 1) * granularity
		}
	}

	if next != nil && !next.isFree() {
		endOffset := offset + size
		nextStartPage := next.offset / granularity
		candidateEndPage := (endOffset - 1) / granularity
		if nextStartPage == candidateEndPage && allocationsConflict(typ, next.typ) {
			return 0, false
		}
	}

	return offset, true
}

func alignUp(value uint64, alignment uint64) uint64 {
	if alignment == 0 {
		return value
	}
	return (value + alignment - 1) &^ (alignment - 1)
}

func alignDown(value uint64, alignment uint64) uint64 {
	if alignment == 0 {
		return value
	}
	return value &^ (alignment - 1)
}

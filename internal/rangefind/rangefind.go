// Package rangefind implements a free-range bitmap search: given a
// bit-array of "busy" flags, find a contiguous run of clear bits that
// best fits size_required, preferring locality to near_pos.
package rangefind

import "math/bits"

// maxDistanceToSearchBestMatch bounds the locality window: once the
// scan has moved this many bits plus size_required past near_pos, the
// search stops insisting on best-fit and takes whatever it has found.
const maxDistanceToSearchBestMatch = 64

// wordRange is a candidate run expressed as [Position, Position+Size).
type wordRange struct {
	position uint64
	size     uint64
}

// scanner walks a bitmap word by word, tracking the previously seen
// set bit so that the gap between two set bits (or between a set bit
// and the end of the scanned region) becomes a candidate free range.
type scanner struct {
	bitmap       []uint64
	sizeRequired uint64
	index        uint64

	current uint64

	currentSetBit  uint64
	previousSetBit uint64

	selection wordRange
}

func newScanner(bitmap []uint64, sizeRequired uint64) *scanner {
	s := &scanner{
		bitmap:       bitmap,
		sizeRequired: sizeRequired,
		// previousSetBit starts at the maximum value on purpose: the
		// first candidate's position computation (previousSetBit + 1)
		// then wraps around to 0, so a bitmap that is clear from the
		// very first bit reports a candidate starting at bit 0.
		previousSetBit: ^uint64(0),
	}
	if len(bitmap) > 0 {
		s.current = bitmap[0]
	}
	return s
}

// handleZeroWord treats the current word (all bits clear) as an
// extension of the run started at previousSetBit+1, reporting it as a
// candidate if it's big enough to be worth recording at all (i.e. it
// would actually extend past anything seen so far).
func (s *scanner) handleZeroWord() bool {
	s.currentSetBit = (s.index + 1) * 64
	if s.currentSetBit > s.previousSetBit+s.sizeRequired {
		s.selection.position = s.previousSetBit + 1
		s.selection.size = s.currentSetBit - s.selection.position
		return true
	}
	return false
}

// scanOnce looks for the next candidate range within the current word,
// advancing previousSetBit as it walks past set bits. It does not
// advance s.index; the caller (nextRange) does that.
func (s *scanner) scanOnce() bool {
	word := s.current

	if word == ^uint64(0) {
		// Every bit in this word is busy; nothing to find here, but
		// remember where the scan got to.
		s.previousSetBit = (s.index+1)*64 - 1
		return false
	}

	if word == 0 {
		return s.handleZeroWord()
	}

	for word != 0 {
		r := uint64(bits.TrailingZeros64(word))
		s.currentSetBit = s.index*64 + r
		if s.currentSetBit > s.previousSetBit+s.sizeRequired {
			s.selection.position = s.previousSetBit + 1
			s.selection.size = s.currentSetBit - s.selection.position
			s.previousSetBit = s.currentSetBit
			return true
		}
		s.previousSetBit = s.currentSetBit
		word &= word - 1 // clear the lowest set bit
	}

	return s.handleZeroWord()
}

// nextRange advances the scan to the next candidate range, masking off
// the bits already accounted for and pulling in subsequent words as
// needed. It returns false once the bitmap is exhausted.
func (s *scanner) nextRange() bool {
	for {
		if s.scanOnce() {
			if s.currentSetBit%64 != 0 {
				// Mask off everything up to and including the set bit
				// we just used as a boundary, so the next scanOnce call
				// on this same word doesn't re-discover it.
				mask := ^(^uint64(0) << (s.currentSetBit % 64))
				s.current |= mask
			} else if s.index+1 < uint64(len(s.bitmap)) {
				s.index++
				s.current = s.bitmap[s.index]
				continue
			} else {
				s.current = ^uint64(0)
			}
			return true
		}
		s.index++
		if s.index >= uint64(len(s.bitmap)) {
			return false
		}
		s.current = s.bitmap[s.index]
	}
}

// bestFitWithinWindow runs the scan to completion (or until the scan
// passes the locality boundary), tracking both the first exact fit and
// the smallest sufficient run seen so far.
func (s *scanner) bestFitWithinWindow(searchNearby bool) bool {
	best := wordRange{size: ^uint64(0)}
	boundary := maxDistanceToSearchBestMatch + s.sizeRequired

	for s.nextRange() {
		if s.selection.size == s.sizeRequired {
			return true
		}
		if best.size > s.selection.size {
			best = s.selection
		}
		if searchNearby && s.selection.position > boundary {
			if best.size < s.selection.size {
				s.selection = best
			}
			return true
		}
	}

	s.selection = best
	return best.size != ^uint64(0)
}

// FindFreeRange scans bitmap (one bit per page, bit set = busy) for a
// contiguous run of at least sizeRequired clear bits, starting the
// search near nearPos and falling back to best-fit-within-locality or
// first-fit-beyond-it. nbits is the number of valid bits in bitmap
// (trailing bits in the final word beyond nbits are assumed to already
// be marked busy by the caller). It reports false if no sufficient run
// exists, size_required is zero, or near_pos is out of range.
func FindFreeRange(bitmap []uint64, nbits uint64, sizeRequired uint64, nearPos uint64) (uint64, bool) {
	if sizeRequired == 0 || nearPos >= nbits {
		return 0, false
	}

	high := nearPos / 64
	if high >= uint64(len(bitmap)) {
		return 0, false
	}

	forward := newScanner(bitmap[high:], sizeRequired)
	if forward.bestFitWithinWindow(high != 0) {
		return forward.selection.position + high*64, true
	}
	if high == 0 {
		return 0, false
	}

	// Nothing forward of near_pos at all; retry from the start of the
	// bitmap up to (but not including) the word we already scanned,
	// taking the first sufficient range rather than hunting for best fit.
	backward := newScanner(bitmap[:high], sizeRequired)
	if backward.nextRange() {
		return backward.selection.position, true
	}

	return 0, false
}

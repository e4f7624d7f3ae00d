package layout

// BitsPerPage is how many bits one bitmap page carries (one bit per
// page in the file): PageSize bytes * 8 bits/byte.
const BitsPerPage = PageSize * 8

// BitLocation returns which bitmap page carries pageNum's bit and the
// bit's byte/bit offsets within that page. Bitmap pages start at page
// 1: bit 0 of byte 0 of page 1 corresponds to page 0.
func BitLocation(pageNum uint64) (bitmapPage uint64, byteOffset uint64, bitInByte uint) {
	bitmapPage = 1 + pageNum/BitsPerPage
	withinPage := pageNum % BitsPerPage
	byteOffset = withinPage / 8
	bitInByte = uint(withinPage % 8)
	return bitmapPage, byteOffset, bitInByte
}

package aarch64

// isAddrOffsetEncodable reports whether offset fits the unsigned scaled
// 12-bit immediate form of LDR/STR for the given access size.
func isAddrOffsetEncodable(offset, size int) bool {
	if size == 0 {
		size = 8
	}
	if offset < 0 || offset%size != 0 {
		return false
	}
	return offset/size < 4096
}

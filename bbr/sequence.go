package bbr

// IncreaseSequenceNumber returns the Backbone Router sequence number following
// current. 126 and 127 wrap to 0, 254 and 255 wrap to 128.
func IncreaseSequenceNumber(current uint8) uint8 {
	switch current {
	case 126, 127:
		return 0
	case 254, 255:
		return 128
	default:
		return current + 1
	}
}

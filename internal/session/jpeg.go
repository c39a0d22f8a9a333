package session

// IsJPEG reports whether data starts with the JPEG start-of-image marker.
func IsJPEG(data []byte) bool {
	return len(data) >= 2 && data[0] == 0xFF && data[1] == 0xD8
}

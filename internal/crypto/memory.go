package crypto

// clearBytes overwrites the given slice with zeros.
//
// Used to remove key material from memory as soon as it is no longer
// needed. Go's GC gives no guarantee about when freed memory is reused,
// so we zero eagerly.
func clearBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// ClearBytes is the exported variant for callers outside this package
// that hold derived key material.
func ClearBytes(b []byte) {
	clearBytes(b)
}

package capture

// Gate remembers the fingerprint of the one clipboard write we expect to see
// echoed back, so our own copy-back is not captured as new content.
type Gate struct {
	hash  string
	armed bool
}

// Arm replaces whatever was expected with hash.
func (g *Gate) Arm(hash string) {
	g.hash = hash
	g.armed = true
}

// Disarm clears the slot.
func (g *Gate) Disarm() {
	g.hash = ""
	g.armed = false
}

// Armed returns the expected fingerprint, if any.
func (g *Gate) Armed() (string, bool) {
	return g.hash, g.armed
}

// TryConsume reports whether hash is the expected echo. A match clears the
// slot; a mismatch leaves it armed.
func (g *Gate) TryConsume(hash string) bool {
	if !g.armed || g.hash != hash {
		return false
	}
	g.Disarm()
	return true
}

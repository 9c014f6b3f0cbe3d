//go:build !windows

package platform

type noAutostart struct{}

// NewAutostart returns an Autostart that reports ErrUnsupported.
func NewAutostart() Autostart {
	return noAutostart{}
}

func (noAutostart) Enabled() (bool, error) { return false, ErrUnsupported }
func (noAutostart) SetEnabled(bool) error  { return ErrUnsupported }

//go:build !windows

package secrets

// NewDefault returns an encrypted file store at path.
func NewDefault(path string) Store {
	return NewFileStore(path)
}

// Package secrets stores the few strings that must not sit in plain JSON:
// the update repository URL and its access token.
package secrets

import "errors"

// ErrNotFound is returned by Get when no value is stored under a name.
var ErrNotFound = errors.New("secret not found")

// Well-known secret names.
const (
	RepoURL = "Membrain.UpdateRepoUrl"
	Token   = "Membrain.UpdateToken"
)

// Store is an opaque string vault. Putting an empty value deletes the entry.
type Store interface {
	Get(name string) (string, error)
	Put(name, value string) error
	Delete(name string) error
}

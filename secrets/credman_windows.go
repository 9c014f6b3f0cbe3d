//go:build windows

package secrets

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	advapi32   = windows.NewLazySystemDLL("advapi32.dll")
	credWrite  = advapi32.NewProc("CredWriteW")
	credRead   = advapi32.NewProc("CredReadW")
	credDelete = advapi32.NewProc("CredDeleteW")
	credFree   = advapi32.NewProc("CredFree")
)

const (
	credTypeGeneric         = 1
	credPersistLocalMachine = 2
)

type credential struct {
	Flags              uint32
	Type               uint32
	TargetName         *uint16
	Comment            *uint16
	LastWritten        windows.Filetime
	CredentialBlobSize uint32
	CredentialBlob     *byte
	Persist            uint32
	AttributeCount     uint32
	Attributes         uintptr
	TargetAlias        *uint16
	UserName           *uint16
}

// CredentialStore keeps secrets in the Windows Credential Manager as generic
// credentials, one per name.
type CredentialStore struct{}

// NewDefault returns the Credential Manager store. path is ignored on Windows.
func NewDefault(path string) Store {
	return CredentialStore{}
}

func (CredentialStore) Get(name string) (string, error) {
	target, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return "", err
	}

	var cred *credential
	r, _, err := credRead.Call(uintptr(unsafe.Pointer(target)), credTypeGeneric, 0, uintptr(unsafe.Pointer(&cred)))
	if r == 0 {
		if errors.Is(err, windows.ERROR_NOT_FOUND) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("CredRead failed: %w", err)
	}
	defer credFree.Call(uintptr(unsafe.Pointer(cred)))

	if cred.CredentialBlob == nil || cred.CredentialBlobSize == 0 {
		return "", ErrNotFound
	}
	blob := unsafe.Slice(cred.CredentialBlob, cred.CredentialBlobSize)
	return string(blob), nil
}

func (s CredentialStore) Put(name, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return s.Delete(name)
	}

	target, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return err
	}
	user, err := windows.UTF16PtrFromString(os.Getenv("USERNAME"))
	if err != nil {
		return err
	}

	blob := []byte(value)
	cred := credential{
		Type:               credTypeGeneric,
		TargetName:         target,
		CredentialBlobSize: uint32(len(blob)),
		CredentialBlob:     &blob[0],
		Persist:            credPersistLocalMachine,
		UserName:           user,
	}

	r, _, err := credWrite.Call(uintptr(unsafe.Pointer(&cred)), 0)
	if r == 0 {
		return fmt.Errorf("CredWrite failed: %w", err)
	}
	return nil
}

func (CredentialStore) Delete(name string) error {
	target, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return err
	}
	r, _, err := credDelete.Call(uintptr(unsafe.Pointer(target)), credTypeGeneric, 0)
	if r == 0 && !errors.Is(err, windows.ERROR_NOT_FOUND) {
		return fmt.Errorf("CredDelete failed: %w", err)
	}
	return nil
}

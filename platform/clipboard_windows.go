//go:build windows

package platform

import (
	"context"
	"fmt"
	"syscall"
	"time"
	"unsafe"

	"golang.design/x/clipboard"
	"golang.org/x/sys/windows"
)

var (
	user32                     = windows.NewLazySystemDLL("user32.dll")
	kernel32                   = windows.NewLazySystemDLL("kernel32.dll")
	shell32                    = windows.NewLazySystemDLL("shell32.dll")
	openClipboard              = user32.NewProc("OpenClipboard")
	closeClipboard             = user32.NewProc("CloseClipboard")
	emptyClipboard             = user32.NewProc("EmptyClipboard")
	getClipboardData           = user32.NewProc("GetClipboardData")
	setClipboardData           = user32.NewProc("SetClipboardData")
	isClipboardFormatAvailable = user32.NewProc("IsClipboardFormatAvailable")
	getClipboardSequenceNumber = user32.NewProc("GetClipboardSequenceNumber")
	globalAlloc                = kernel32.NewProc("GlobalAlloc")
	globalLock                 = kernel32.NewProc("GlobalLock")
	globalUnlock               = kernel32.NewProc("GlobalUnlock")
	dragQueryFile              = shell32.NewProc("DragQueryFileW")
)

const (
	cfUnicodeText = 13
	cfHDrop       = 15
	gmemMoveable  = 0x0002
)

// WindowsClipboard implements Clipboard on the Win32 clipboard. Text and
// file lists go through user32 directly; images go through
// golang.design/x/clipboard, which converts DIBs to PNG.
type WindowsClipboard struct {
	pollInterval time.Duration
}

// NewClipboard creates the Windows clipboard. Changes are detected by
// polling the clipboard sequence number every pollInterval.
func NewClipboard(pollInterval time.Duration) (Clipboard, error) {
	if err := clipboard.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize clipboard: %w", err)
	}
	return &WindowsClipboard{pollInterval: pollInterval}, nil
}

// ReadImage returns the clipboard bitmap encoded as PNG.
func (c *WindowsClipboard) ReadImage() ([]byte, error) {
	return clipboard.Read(clipboard.FmtImage), nil
}

// ReadFiles returns the paths of a copied file list (CF_HDROP).
func (c *WindowsClipboard) ReadFiles() ([]string, error) {
	if r, _, _ := isClipboardFormatAvailable.Call(cfHDrop); r == 0 {
		return nil, nil
	}

	if err := c.open(readOpenAttempts); err != nil {
		return nil, err
	}
	defer c.close()

	h, _, err := getClipboardData.Call(cfHDrop)
	if h == 0 {
		if err != nil && err != syscall.Errno(0) {
			return nil, fmt.Errorf("GetClipboardData failed: %w", err)
		}
		return nil, nil
	}

	count, _, _ := dragQueryFile.Call(h, 0xFFFFFFFF, 0, 0)
	files := make([]string, 0, count)
	for i := uintptr(0); i < count; i++ {
		n, _, _ := dragQueryFile.Call(h, i, 0, 0)
		if n == 0 {
			continue
		}
		buf := make([]uint16, n+1)
		dragQueryFile.Call(h, i, uintptr(unsafe.Pointer(&buf[0])), n+1)
		files = append(files, windows.UTF16ToString(buf))
	}
	return files, nil
}

// ReadText retrieves text from the clipboard
func (c *WindowsClipboard) ReadText() (string, error) {
	if r, _, _ := isClipboardFormatAvailable.Call(cfUnicodeText); r == 0 {
		return "", nil
	}

	if err := c.open(readOpenAttempts); err != nil {
		return "", err
	}
	defer c.close()

	h, _, err := getClipboardData.Call(cfUnicodeText)
	if h == 0 {
		if err != nil && err != syscall.Errno(0) {
			return "", fmt.Errorf("GetClipboardData failed: %w", err)
		}
		return "", nil
	}

	l, _, err := globalLock.Call(h)
	if l == 0 {
		return "", fmt.Errorf("GlobalLock failed: %w", err)
	}
	defer globalUnlock.Call(h)

	return windows.UTF16PtrToString((*uint16)(unsafe.Pointer(l))), nil
}

// WriteText replaces the clipboard with text
func (c *WindowsClipboard) WriteText(text string) error {
	if err := c.open(writeOpenAttempts); err != nil {
		return err
	}
	defer c.close()

	emptyClipboard.Call()

	utf16, err := windows.UTF16FromString(text)
	if err != nil {
		return fmt.Errorf("UTF16 conversion failed: %w", err)
	}

	n := len(utf16) * 2
	h, _, err := globalAlloc.Call(gmemMoveable, uintptr(n))
	if h == 0 {
		return fmt.Errorf("GlobalAlloc failed: %w", err)
	}

	l, _, err := globalLock.Call(h)
	if l == 0 {
		return fmt.Errorf("GlobalLock failed: %w", err)
	}

	dest := unsafe.Slice((*uint16)(unsafe.Pointer(l)), len(utf16))
	copy(dest, utf16)

	globalUnlock.Call(h)

	r, _, err := setClipboardData.Call(cfUnicodeText, h)
	if r == 0 {
		return fmt.Errorf("SetClipboardData failed: %w", err)
	}

	return nil
}

// WriteImage replaces the clipboard with a PNG image.
func (c *WindowsClipboard) WriteImage(png []byte) error {
	if changed := clipboard.Write(clipboard.FmtImage, png); changed == nil {
		return fmt.Errorf("failed to write image to clipboard")
	}
	return nil
}

// Watch polls the clipboard sequence number and signals when it moves.
func (c *WindowsClipboard) Watch(ctx context.Context) (<-chan struct{}, error) {
	if err := getClipboardSequenceNumber.Find(); err != nil {
		return nil, fmt.Errorf("clipboard change detection unavailable: %w", err)
	}

	ch := make(chan struct{}, 1)
	go func() {
		t := time.NewTicker(c.pollInterval)
		defer t.Stop()

		last, _, _ := getClipboardSequenceNumber.Call()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				seq, _, _ := getClipboardSequenceNumber.Call()
				if seq == last {
					continue
				}
				last = seq
				select {
				case ch <- struct{}{}:
				default:
				}
			}
		}
	}()
	return ch, nil
}

func (c *WindowsClipboard) open(attempts int) error {
	ok := tryOpen(func() bool {
		r, _, _ := openClipboard.Call(0)
		return r != 0
	}, attempts, openRetryWait, time.Sleep)
	if !ok {
		return fmt.Errorf("clipboard is locked by another process")
	}
	return nil
}

func (c *WindowsClipboard) close() {
	closeClipboard.Call()
}

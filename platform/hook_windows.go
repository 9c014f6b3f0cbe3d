//go:build windows

package platform

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"

	"markestedt/membrain/config"
)

var (
	setWindowsHookEx    = user32.NewProc("SetWindowsHookExW")
	callNextHookEx      = user32.NewProc("CallNextHookEx")
	unhookWindowsHookEx = user32.NewProc("UnhookWindowsHookEx")
	getMessage          = user32.NewProc("GetMessageW")
	postThreadMessage   = user32.NewProc("PostThreadMessageW")
	getAsyncKeyState    = user32.NewProc("GetAsyncKeyState")
)

const (
	whKeyboardLL = 13
	wmKeydown    = 0x0100
	wmSyskeydown = 0x0104
	wmQuit       = 0x0012
)

const (
	vkShift    = 0x10
	vkCtrl     = 0x11
	vkAlt      = 0x12
	vkCapsLock = 0x14
	vkLwin     = 0x5B // Left Windows key
	vkRwin     = 0x5C // Right Windows key
)

// HookReplyTimeout bounds how long a key press waits for the agent loop to
// decide whether to swallow it. Windows silently removes hooks that take
// too long.
const HookReplyTimeout = 150 * time.Millisecond

type kbdllhookstruct struct {
	vkCode      uint32
	scanCode    uint32
	flags       uint32
	time        uint32
	dwExtraInfo uintptr
}

type msg struct {
	hwnd    uintptr
	message uint32
	wParam  uintptr
	lParam  uintptr
	time    uint32
	pt      struct{ x, y int32 }
}

// hookStopTimeout bounds how long Stop waits for the hook thread.
const hookStopTimeout = 2 * time.Second

// WindowsHook implements KeyboardHook with WH_KEYBOARD_LL.
type WindowsHook struct {
	mu        sync.Mutex
	events    chan KeyDown
	grab      atomic.Bool
	threadID  uint32
	exited    chan struct{}
	unhookErr error

	stopOnce sync.Once
	stopErr  error
}

// NewKeyboardHook creates a Windows low-level keyboard hook
func NewKeyboardHook() KeyboardHook {
	return &WindowsHook{}
}

// Start installs the hook. Key presses are delivered on the returned
// channel until ctx is done, at which point the hook is removed.
func (h *WindowsHook) Start(ctx context.Context) (<-chan KeyDown, error) {
	h.mu.Lock()
	h.events = make(chan KeyDown, 16)
	h.mu.Unlock()

	// Start hook in a goroutine
	errCh := make(chan error, 1)
	go h.runHook(errCh)

	// Wait for hook to be installed or error
	select {
	case err := <-errCh:
		if err != nil {
			return nil, err
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	go func() {
		<-ctx.Done()
		if err := h.Stop(); err != nil {
			slog.Debug("Keyboard hook stop on cancel", "error", err)
		}
	}()

	return h.events, nil
}

// SetGrab makes unanswered keys swallowed (true) or passed on (false).
func (h *WindowsHook) SetGrab(on bool) {
	h.grab.Store(on)
}

// Stop ends the hook thread's message loop and waits for UnhookWindowsHookEx.
// Later calls return the first result.
func (h *WindowsHook) Stop() error {
	h.stopOnce.Do(func() {
		h.mu.Lock()
		tid, exited := h.threadID, h.exited
		h.mu.Unlock()
		if exited == nil {
			return
		}

		// Unhooking happens on the hook thread once its loop exits
		if r, _, err := postThreadMessage.Call(uintptr(tid), wmQuit, 0, 0); r == 0 {
			h.stopErr = fmt.Errorf("PostThreadMessage failed: %w", err)
			return
		}

		select {
		case <-exited:
			h.stopErr = h.unhookErr
		case <-time.After(hookStopTimeout):
			h.stopErr = fmt.Errorf("keyboard hook thread did not exit within %s", hookStopTimeout)
		}
	})
	return h.stopErr
}

func (h *WindowsHook) runHook(errCh chan<- error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	hookProc := func(nCode int32, wParam uintptr, lParam uintptr) uintptr {
		if nCode >= 0 && (wParam == wmKeydown || wParam == wmSyskeydown) {
			kbInfo := (*kbdllhookstruct)(unsafe.Pointer(lParam))
			if h.handleKeyDown(kbInfo) {
				return 1
			}
		}
		r, _, _ := callNextHookEx.Call(0, uintptr(nCode), wParam, lParam)
		return r
	}

	hook, _, err := setWindowsHookEx.Call(
		whKeyboardLL,
		windows.NewCallback(hookProc),
		0,
		0,
	)

	if hook == 0 {
		errCh <- fmt.Errorf("SetWindowsHookEx failed: %w", err)
		return
	}

	exited := make(chan struct{})
	defer close(exited)

	h.mu.Lock()
	h.threadID = windows.GetCurrentThreadId()
	h.exited = exited
	h.mu.Unlock()

	errCh <- nil

	// Low-level hooks are dispatched through this thread's message loop
	var m msg
	for {
		r, _, _ := getMessage.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0)
		if int32(r) <= 0 {
			break
		}
	}

	if r, _, err := unhookWindowsHookEx.Call(hook); r == 0 {
		h.unhookErr = fmt.Errorf("UnhookWindowsHookEx failed: %w", err)
	}
}

// handleKeyDown hands the key to the agent and waits briefly for a verdict.
// Keys without a name are forwarded as config.KeyNone so the overlay can
// still swallow them.
func (h *WindowsHook) handleKeyDown(kbInfo *kbdllhookstruct) bool {
	return deliverKey(h.events, keyForVK(kbInfo.vkCode), heldModifiers(), h.grab.Load(), HookReplyTimeout)
}

func heldModifiers() config.Modifier {
	var m config.Modifier
	if isKeyPressed(vkCtrl) {
		m |= config.ModCtrl
	}
	if isKeyPressed(vkAlt) {
		m |= config.ModAlt
	}
	if isKeyPressed(vkShift) {
		m |= config.ModShift
	}
	if isKeyPressed(vkLwin) || isKeyPressed(vkRwin) {
		m |= config.ModWin
	}
	if isKeyPressed(vkCapsLock) {
		m |= config.ModCapsLock
	}
	return m
}

func isKeyPressed(vk int) bool {
	r, _, _ := getAsyncKeyState.Call(uintptr(vk))
	return r&0x8000 != 0
}

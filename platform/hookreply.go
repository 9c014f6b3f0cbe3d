package platform

import (
	"time"

	"markestedt/membrain/config"
)

// deliverKey hands a key press to the receiver of events and waits up to
// timeout for its verdict. A full queue or a late answer yields grab.
func deliverKey(events chan<- KeyDown, key config.Key, mods config.Modifier, grab bool, timeout time.Duration) bool {
	reply := make(chan bool, 1)
	select {
	case events <- KeyDown{Key: key, Modifiers: mods, Consumed: reply}:
	default:
		return grab
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case consumed := <-reply:
		return consumed
	case <-timer.C:
		return grab
	}
}

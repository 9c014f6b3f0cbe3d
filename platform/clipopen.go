package platform

import "time"

// Reads get one attempt at the clipboard: a locked clipboard means no
// capture this time, and the next change notification tries again. Writes
// are user-initiated and worth a short wait.
const (
	readOpenAttempts  = 1
	writeOpenAttempts = 10
	openRetryWait     = 10 * time.Millisecond
)

// tryOpen calls open up to attempts times, sleeping wait between tries.
func tryOpen(open func() bool, attempts int, wait time.Duration, sleep func(time.Duration)) bool {
	for i := 0; i < attempts; i++ {
		if i > 0 {
			sleep(wait)
		}
		if open() {
			return true
		}
	}
	return false
}

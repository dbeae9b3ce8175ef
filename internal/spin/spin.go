// Package spin provides the bounded-backoff helper shared by the retrying
// acquisition paths.
//
// The library assumes no scheduler, so backoff never sleeps on a timer. On a
// hosted Go runtime the best available equivalent of a CPU pause after a few
// failed attempts is yielding the processor to another goroutine.
package spin

import "runtime"

// busyThreshold is the number of failed attempts spent pure busy-spinning
// before each retry starts yielding the processor.
const busyThreshold = 8

// Backoff delays between acquisition attempts. attempt is the number of
// failures so far, starting at 0.
//
// Note: not //go:nosplit because runtime.Gosched requires stack space.
func Backoff(attempt int) {
	if attempt < busyThreshold {
		// Short contention windows: burn a few cycles instead of paying
		// a scheduler round-trip. The loop scales with the attempt count
		// so early retries stay nearly free.
		for i := 0; i < 1<<uint(attempt); i++ {
			_ = i
		}
		return
	}
	runtime.Gosched()
}

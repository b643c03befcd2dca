package engine

import (
	"fmt"
	"time"
)

// outcome passes an evaluation result through a channel.
type outcome[T any] struct {
	val T
	err error
}

// runWithTimeout runs fn on its own goroutine and waits at most timeout for
// it. Panics in fn are returned as errors. A timeout of zero or less waits
// indefinitely.
//
// On timeout the goroutine may still be running; its result is dropped into
// the buffered channel and discarded.
func runWithTimeout[T any](timeout time.Duration, fn func() (T, error)) (T, error) {
	ch := make(chan outcome[T], 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- outcome[T]{err: fmt.Errorf("panic during evaluation: %v", r)}
			}
		}()
		v, err := fn()
		ch <- outcome[T]{val: v, err: err}
	}()

	if timeout <= 0 {
		res := <-ch
		return res.val, res.err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		return res.val, res.err
	case <-timer.C:
		var zero T
		return zero, fmt.Errorf("%w after %s", ErrTimeout, timeout)
	}
}

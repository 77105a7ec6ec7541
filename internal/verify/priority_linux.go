//go:build linux

package verify

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// backgroundNiceness is added to the thread's nice value. Linux applies
// niceness per thread, so only the locked job thread is affected.
const backgroundNiceness = 10

// lowerThreadPriority pins the calling goroutine to its OS thread and lowers
// that thread's scheduling priority. The goroutine must not unlock the
// thread; when it exits the runtime discards the thread instead of reusing it.
func lowerThreadPriority() error {
	runtime.LockOSThread()
	tid := unix.Gettid()
	current, err := unix.Getpriority(unix.PRIO_PROCESS, tid)
	if err != nil {
		return fmt.Errorf("get thread priority: %w", err)
	}
	// getpriority(2) returns 20-nice on Linux.
	nice := 20 - current + backgroundNiceness
	if nice > 19 {
		nice = 19
	}
	if err := unix.Setpriority(unix.PRIO_PROCESS, tid, nice); err != nil {
		return fmt.Errorf("set thread priority: %w", err)
	}
	return nil
}

package go_func_utils

import (
	"log"
	"runtime/debug"
	"time"
)

// SafeGo runs fn on a new goroutine. The terminal UI swallows stdout, so a
// panic is written to logger (with its stack) before crashing out again.
func SafeGo(logger *log.Logger, fn func()) {
	go func() {
		defer recoverAndLog(logger)
		fn()
	}()
}

// SafeAfterFunc is time.AfterFunc with the same panic capture as SafeGo.
func SafeAfterFunc(logger *log.Logger, d time.Duration, fn func()) *time.Timer {
	return time.AfterFunc(d, func() {
		defer recoverAndLog(logger)
		fn()
	})
}

func recoverAndLog(logger *log.Logger) {
	if r := recover(); r != nil {
		logger.Printf("PANIC: %v\n%s", r, debug.Stack())
		panic(r)
	}
}

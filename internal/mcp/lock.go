package mcp

import "sync/atomic"

// tryLock is a non-blocking mutex. A second export_results call is
// rejected while a workbook is still being written rather than queued.
type tryLock struct {
	state atomic.Int32 // 0 = free, 1 = held
}

// TryAcquire takes the lock if it is free
func (l *tryLock) TryAcquire() bool {
	return l.state.CompareAndSwap(0, 1)
}

// Release frees the lock. Only the holder may call it.
func (l *tryLock) Release() {
	l.state.Store(0)
}

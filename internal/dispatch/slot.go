package dispatch

import "sync/atomic"

// PlaybackSlot 全局播放槽：同一时刻至多一个提示音在播放
type PlaybackSlot struct {
	busy atomic.Bool
}

// TryAcquire 原子地占用播放槽；已被占用时返回 false
func (s *PlaybackSlot) TryAcquire() bool {
	return s.busy.CompareAndSwap(false, true)
}

// Release 释放播放槽
func (s *PlaybackSlot) Release() {
	s.busy.Store(false)
}

// Busy 当前是否有提示音在播放
func (s *PlaybackSlot) Busy() bool {
	return s.busy.Load()
}

package domain

import (
	"sync/atomic"
	"time"
)

// Activity はセッションの送受信状況を記録します。全フィールドは atomic で、ロックなしで読めます。
type Activity struct {
	lastRead  atomic.Int64
	lastWrite atomic.Int64

	received     atomic.Uint64
	decodeErrors atomic.Uint64
	moves        atomic.Uint64
	rejoins      atomic.Uint64
}

// ActivityStats は Activity のある時点のコピーです。
type ActivityStats struct {
	MessagesReceived uint64
	DecodeErrors     uint64
	MovesSent        uint64
	Rejoins          uint64
	LastRead         time.Time
	LastWrite        time.Time
}

func (a *Activity) TouchRead(now time.Time) {
	a.lastRead.Store(now.UnixNano())
	a.received.Add(1)
}

func (a *Activity) TouchWrite(now time.Time) {
	a.lastWrite.Store(now.UnixNano())
}

func (a *Activity) CountDecodeError() { a.decodeErrors.Add(1) }
func (a *Activity) CountMove()        { a.moves.Add(1) }
func (a *Activity) CountRejoin()      { a.rejoins.Add(1) }

func (a *Activity) Stats() ActivityStats {
	return ActivityStats{
		MessagesReceived: a.received.Load(),
		DecodeErrors:     a.decodeErrors.Load(),
		MovesSent:        a.moves.Load(),
		Rejoins:          a.rejoins.Load(),
		LastRead:         unixNanoToTime(a.lastRead.Load()),
		LastWrite:        unixNanoToTime(a.lastWrite.Load()),
	}
}

// 未記録の場合はゼロ値の time.Time を返します。
func unixNanoToTime(nano int64) time.Time {
	if nano == 0 {
		return time.Time{}
	}
	return time.Unix(0, nano)
}

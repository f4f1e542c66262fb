package domain

import (
	"testing"
	"time"
)

// 未記録のタイムスタンプはゼロ値で返ることを確認
func TestActivity_ZeroValue(t *testing.T) {
	var a Activity
	s := a.Stats()
	if !s.LastRead.IsZero() || !s.LastWrite.IsZero() {
		t.Errorf("timestamps should be zero: %+v", s)
	}
	if s.MessagesReceived != 0 || s.MovesSent != 0 {
		t.Errorf("counters should be zero: %+v", s)
	}
}

func TestActivity_Counts(t *testing.T) {
	var a Activity
	now := time.Unix(1700000000, 0)

	a.TouchRead(now)
	a.TouchRead(now.Add(time.Second))
	a.TouchWrite(now.Add(2 * time.Second))
	a.CountMove()
	a.CountRejoin()
	a.CountDecodeError()

	s := a.Stats()
	if s.MessagesReceived != 2 {
		t.Errorf("MessagesReceived = %d, want 2", s.MessagesReceived)
	}
	if !s.LastRead.Equal(now.Add(time.Second)) {
		t.Errorf("LastRead = %v, want %v", s.LastRead, now.Add(time.Second))
	}
	if !s.LastWrite.Equal(now.Add(2 * time.Second)) {
		t.Errorf("LastWrite = %v, want %v", s.LastWrite, now.Add(2*time.Second))
	}
	if s.MovesSent != 1 || s.Rejoins != 1 || s.DecodeErrors != 1 {
		t.Errorf("stats = %+v, want one move, one rejoin, one decode error", s)
	}
}

func TestSessionState_String(t *testing.T) {
	if got := StateRejoining.String(); got != "rejoining" {
		t.Errorf("String = %s, want rejoining", got)
	}
	if got := SessionState(99).String(); got != "unknown" {
		t.Errorf("String = %s, want unknown", got)
	}
}

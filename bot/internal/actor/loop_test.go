package actor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestNew_RequiresHandler(t *testing.T) {
	if _, err := New(Config[int]{}); err == nil {
		t.Fatal("expected error for missing handler")
	}
}

// 投入された順に単一ゴルーチンで処理されることを確認
func TestLoop_ProcessesInOrder(t *testing.T) {
	var mu sync.Mutex
	var got []int
	done := make(chan struct{})

	l, err := New(Config[int]{Handler: func(_ context.Context, n int) {
		mu.Lock()
		got = append(got, n)
		if len(got) == 100 {
			close(done)
		}
		mu.Unlock()
	}})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	for i := range 100 {
		if err := l.Submit(context.Background(), i); err != nil {
			t.Fatalf("Submit(%d) failed: %v", i, err)
		}
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for messages")
	}
	mu.Lock()
	defer mu.Unlock()
	for i, n := range got {
		if n != i {
			t.Fatalf("got[%d] = %d, want %d", i, n, i)
		}
	}
	if err := l.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

func TestLoop_SubmitBeforeStart(t *testing.T) {
	l, _ := New(Config[int]{Handler: func(context.Context, int) {}})
	if err := l.Submit(context.Background(), 1); !errors.Is(err, ErrNotStarted) {
		t.Errorf("err = %v, want ErrNotStarted", err)
	}
}

func TestLoop_SubmitAfterStop(t *testing.T) {
	l, _ := New(Config[int]{Handler: func(context.Context, int) {}})
	_ = l.Start(context.Background())
	if err := l.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := l.Submit(context.Background(), 1); !errors.Is(err, ErrStopped) {
		t.Errorf("err = %v, want ErrStopped", err)
	}
	if err := l.Stop(context.Background()); err != nil {
		t.Errorf("second Stop = %v, want nil", err)
	}
}

func TestLoop_ExitsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	l, _ := New(Config[int]{Handler: func(context.Context, int) {}})
	_ = l.Start(ctx)
	cancel()

	select {
	case <-l.Done():
	case <-time.After(time.Second):
		t.Fatal("loop did not exit after cancel")
	}
}

// ハンドラのパニックでループが止まらないことを確認
func TestLoop_RecoversHandlerPanic(t *testing.T) {
	handled := make(chan int, 2)
	l, _ := New(Config[int]{Handler: func(_ context.Context, n int) {
		if n == 0 {
			panic("boom")
		}
		handled <- n
	}})
	_ = l.Start(context.Background())
	defer l.Stop(context.Background())

	_ = l.Submit(context.Background(), 0)
	_ = l.Submit(context.Background(), 1)

	select {
	case n := <-handled:
		if n != 1 {
			t.Errorf("handled %d, want 1", n)
		}
	case <-time.After(time.Second):
		t.Fatal("loop stopped after handler panic")
	}
}

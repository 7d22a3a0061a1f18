package process_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/censor-ci/censor/pkg/process"
)

func TestManager_ShutdownHandlersRunInReverse(t *testing.T) {
	m := process.NewManager(nil)

	var mu sync.Mutex
	var order []int
	for i := 1; i <= 3; i++ {
		i := i
		m.RegisterShutdownHandler(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx)
	if !m.IsRunning() {
		t.Fatal("expected manager to be running")
	}
	cancel()

	select {
	case <-m.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown handlers did not run")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 3 || order[0] != 3 || order[1] != 2 || order[2] != 1 {
		t.Errorf("unexpected handler order %v", order)
	}
	if m.IsRunning() {
		t.Error("expected manager to be stopped")
	}
}

func TestManager_StopWithoutShutdown(t *testing.T) {
	m := process.NewManager(nil)
	called := false
	m.RegisterShutdownHandler(func() { called = true })

	m.Start(context.Background())
	m.Stop()

	if called {
		t.Error("Stop must not run shutdown handlers")
	}
	if m.IsRunning() {
		t.Error("expected manager to be stopped")
	}
}

func TestManager_Heartbeat(t *testing.T) {
	m := process.NewManager(nil)
	beats := make(chan struct{}, 10)
	m.SetHeartbeat(10*time.Millisecond, func() {
		select {
		case beats <- struct{}{}:
		default:
		}
	})

	m.Start(context.Background())
	defer m.Stop()

	select {
	case <-beats:
	case <-time.After(5 * time.Second):
		t.Fatal("heartbeat never fired")
	}
}

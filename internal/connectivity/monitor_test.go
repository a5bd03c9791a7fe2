package connectivity_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"veriflow/internal/connectivity"
	"veriflow/internal/logging"
	"veriflow/internal/testsupport"
)

func newMonitor(t *testing.T) *connectivity.Monitor {
	t.Helper()
	return connectivity.NewMonitor(testsupport.NewConfig(t), logging.NewNop())
}

func TestMonitorStartsOnline(t *testing.T) {
	m := newMonitor(t)
	if !m.IsOnline() {
		t.Fatal("expected monitor to start online")
	}
}

func TestReconnectHookFiresOncePerEdge(t *testing.T) {
	m := newMonitor(t)
	var fired atomic.Int32
	m.SetOnReconnect(func(context.Context) { fired.Add(1) })

	ctx := context.Background()
	m.SetOnline(ctx, false)
	m.SetOnline(ctx, true)
	if got := fired.Load(); got != 1 {
		t.Fatalf("expected one reconnect callback, got %d", got)
	}

	// repeating the online observation must not fire again
	m.SetOnline(ctx, true)
	if got := fired.Load(); got != 1 {
		t.Fatalf("expected no callback without an offline edge, got %d", got)
	}

	m.SetOnline(ctx, false)
	m.SetOnline(ctx, true)
	if got := fired.Load(); got != 2 {
		t.Fatalf("expected second callback after second edge, got %d", got)
	}
}

func TestHookNotFiredWhenGoingOffline(t *testing.T) {
	m := newMonitor(t)
	var fired atomic.Int32
	m.SetOnReconnect(func(context.Context) { fired.Add(1) })

	m.SetOnline(context.Background(), false)
	if got := fired.Load(); got != 0 {
		t.Fatalf("expected no callback on offline edge, got %d", got)
	}
}

func TestSubscribersObserveTransitions(t *testing.T) {
	m := newMonitor(t)
	id, events := m.Subscribe()
	defer m.Unsubscribe(id)

	ctx := context.Background()
	m.SetOnline(ctx, false)
	m.SetOnline(ctx, true)

	first := <-events
	if first.Online {
		t.Fatal("expected first event to be offline")
	}
	second := <-events
	if !second.Online {
		t.Fatal("expected second event to be online")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	m := newMonitor(t)
	id, events := m.Subscribe()
	m.Unsubscribe(id)

	select {
	case _, ok := <-events:
		if ok {
			t.Fatal("expected closed channel after unsubscribe")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}

	// duplicate unsubscribe is a no-op
	m.Unsubscribe(id)
}

func TestSlowSubscriberDoesNotBlockMonitor(t *testing.T) {
	m := newMonitor(t)
	id, _ := m.Subscribe()
	defer m.Unsubscribe(id)

	ctx := context.Background()
	for i := 0; i < 64; i++ {
		m.SetOnline(ctx, i%2 == 0)
	}
	// reaching here means the monitor dropped events instead of blocking
}

func TestForegroundDrainAfterLongAbsence(t *testing.T) {
	m := newMonitor(t)
	var fired atomic.Int32
	m.SetOnReconnect(func(context.Context) { fired.Add(1) })

	ctx := context.Background()
	m.Foreground(ctx, time.Minute)
	if got := fired.Load(); got != 0 {
		t.Fatalf("expected no drain for a short absence, got %d", got)
	}

	m.Foreground(ctx, time.Hour)
	if got := fired.Load(); got != 1 {
		t.Fatalf("expected drain after long absence, got %d", got)
	}

	// offline foregrounds never drain
	m.SetOnline(ctx, false)
	m.Foreground(ctx, time.Hour)
	if got := fired.Load(); got != 1 {
		t.Fatalf("expected no drain while offline, got %d", got)
	}
}

func TestStartRequiresProbeURL(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Connectivity.ProbeURL = ""
	m := connectivity.NewMonitor(cfg, logging.NewNop())
	if err := m.Start(context.Background()); err == nil {
		t.Fatal("expected start without probe url to fail")
	}
}

package metrics

import (
	"encoding/json"
	"sync"
	"testing"
)

func TestCollector_ChannelCounters(t *testing.T) {
	c := New()
	fmtc := c.Channel("fmt")

	fmtc.Received(10)
	fmtc.Received(6)
	fmtc.Sent(4)
	fmtc.Dropped()
	fmtc.SendError()
	fmtc.CreateFailed()
	fmtc.LoopAborted()
	fmtc.Restarted()
	fmtc.SetUp(true)

	got := fmtc.Snapshot()
	want := ChannelSnapshot{
		Up: true, Received: 2, BytesIn: 16, Sends: 1, BytesOut: 4,
		Dropped: 1, SendErrors: 1, CreateFailures: 1, LoopAborts: 1, Restarts: 1,
	}
	if got != want {
		t.Errorf("snapshot = %+v, want %+v", got, want)
	}
}

func TestCollector_ChannelIsShared(t *testing.T) {
	c := New()
	if c.Channel("rfs") != c.Channel("rfs") {
		t.Fatal("Channel should return the same counters for the same name")
	}
	if c.Channel("rfs") == c.Channel("fmt") {
		t.Fatal("distinct channels share counters")
	}
}

func TestCollector_ChannelConcurrent(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Channel("fmt").Sent(1)
			}
		}()
	}
	wg.Wait()

	if n := c.Channel("fmt").Snapshot().Sends; n != 1600 {
		t.Errorf("sends = %d, want 1600", n)
	}
}

func TestCollector_Sessions(t *testing.T) {
	c := New()

	c.SessionOpened()
	c.SessionOpened()
	if c.ActiveSessions() != 2 {
		t.Errorf("active = %d, want 2", c.ActiveSessions())
	}
	if c.TotalSessions() != 2 {
		t.Errorf("total = %d, want 2", c.TotalSessions())
	}

	c.SessionClosed()
	if c.ActiveSessions() != 1 {
		t.Errorf("active = %d, want 1", c.ActiveSessions())
	}
	if c.TotalSessions() != 2 {
		t.Errorf("total should remain 2, got %d", c.TotalSessions())
	}
}

func TestCollector_TunnelReconnects(t *testing.T) {
	c := New()

	c.TunnelReconnect()
	c.TunnelReconnect()
	c.TunnelReconnect()

	if c.TunnelReconnects() != 3 {
		t.Errorf("reconnects = %d, want 3", c.TunnelReconnects())
	}
}

func TestCollector_Errors(t *testing.T) {
	c := New()

	c.RecordError("first error")
	c.RecordError("second error")

	if c.ErrorCount() != 2 {
		t.Errorf("errors = %d, want 2", c.ErrorCount())
	}
}

func TestCollector_Snapshot(t *testing.T) {
	c := New()
	c.SessionOpened()
	c.Channel("fmt").Received(100)
	c.Channel("rfs").Sent(50)
	c.RecordError("test")

	snap := c.Snapshot()
	if snap.SessionsActive != 1 {
		t.Errorf("snap active = %d", snap.SessionsActive)
	}
	if snap.Channels["fmt"].BytesIn != 100 {
		t.Errorf("snap fmt bytes in = %d", snap.Channels["fmt"].BytesIn)
	}
	if snap.Channels["rfs"].BytesOut != 50 {
		t.Errorf("snap rfs bytes out = %d", snap.Channels["rfs"].BytesOut)
	}
	if snap.ErrorsTotal != 1 {
		t.Errorf("snap errors = %d", snap.ErrorsTotal)
	}
	if snap.LastErrorMessage != "test" {
		t.Errorf("snap error msg = %q", snap.LastErrorMessage)
	}
}

func TestCollector_JSON(t *testing.T) {
	c := New()
	c.SessionOpened()
	c.Channel("fmt").Sent(42)

	raw := c.JSON()
	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		t.Fatalf("JSON parse error: %v", err)
	}
	if snap.SessionsActive != 1 {
		t.Errorf("JSON active = %d", snap.SessionsActive)
	}
	if snap.Channels["fmt"].BytesOut != 42 {
		t.Errorf("JSON bytes out = %d", snap.Channels["fmt"].BytesOut)
	}
}

func TestNilCollector_NoOps(t *testing.T) {
	var c *Collector

	// None of these should panic.
	c.SessionOpened()
	c.SessionClosed()
	c.TunnelReconnect()
	c.RecordError("test")

	ch := c.Channel("fmt")
	if ch != nil {
		t.Fatal("nil collector should hand out nil channels")
	}
	ch.Received(1)
	ch.Sent(1)
	ch.Dropped()
	ch.SendError()
	ch.CreateFailed()
	ch.LoopAborted()
	ch.Restarted()
	ch.SetUp(true)

	if c.ActiveSessions() != 0 {
		t.Error("nil collector should return 0")
	}
	if c.ErrorCount() != 0 {
		t.Error("nil collector should return 0")
	}
	if ch.Snapshot() != (ChannelSnapshot{}) {
		t.Error("nil channel snapshot should be zero")
	}

	j := c.JSON()
	if j == "" {
		t.Error("nil JSON should return valid JSON")
	}
}

package dispatch

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"modemlink/internal/transport"
	"modemlink/util"
)

func TestRouter_Precedence(t *testing.T) {
	var got []string
	record := func(tag string) Handler {
		return func(*transport.Envelope) { got = append(got, tag) }
	}

	r := NewRouter(record("fallback"))
	r.Handle(0x0101, record("exact"))
	r.HandleGroup(0x01, record("group"))

	tests := []struct {
		cmd  uint16
		want string
	}{
		{0x0101, "exact"},
		{0x0102, "group"},
		{0x0201, "fallback"},
	}
	for _, tt := range tests {
		got = nil
		r.Dispatch(&transport.Envelope{Command: tt.cmd})
		if len(got) != 1 || got[0] != tt.want {
			t.Errorf("cmd 0x%04x routed to %v, want %s", tt.cmd, got, tt.want)
		}
	}
}

func TestRouter_NoFallbackDrops(t *testing.T) {
	r := NewRouter(nil)
	r.Dispatch(&transport.Envelope{Command: 0x0909}) // must not panic

	called := false
	r.Handle(7, func(*transport.Envelope) { called = true })
	r.Handle(7, nil)
	r.Dispatch(&transport.Envelope{Command: 7})
	if called {
		t.Error("unregistered handler still called")
	}

	r.SetFallback(func(*transport.Envelope) { called = true })
	r.Dispatch(&transport.Envelope{Command: 7})
	if !called {
		t.Error("fallback set after construction not used")
	}
}

func TestFanout_Order(t *testing.T) {
	var got []int
	f := Fanout{
		Handler(func(*transport.Envelope) { got = append(got, 1) }),
		Handler(func(*transport.Envelope) { got = append(got, 2) }),
	}
	f.Dispatch(&transport.Envelope{})
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("fanout order = %v", got)
	}
}

func TestAppendLine(t *testing.T) {
	tests := []struct {
		name string
		kind transport.Kind
		env  transport.Envelope
		want string
	}{
		{
			"fmt",
			transport.KindFMT,
			transport.Envelope{Command: 0x0101, Type: 3, Seq: 7, Data: []byte{0xde, 0xad, 0xbe, 0xef}},
			"fmt cmd=0x0101 type=0x03 seq=7 len=4 data=deadbeef\n",
		},
		{
			"rfs empty",
			transport.KindRFS,
			transport.Envelope{Command: 0x11, Seq: 2},
			"rfs cmd=0x0011 seq=2 len=0 data=\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := string(AppendLine(nil, tt.kind, &tt.env)); got != tt.want {
				t.Errorf("AppendLine = %q, want %q", got, tt.want)
			}
			if got := FormatLine(tt.kind, &tt.env); got != strings.TrimSuffix(tt.want, "\n") {
				t.Errorf("FormatLine = %q", got)
			}
		})
	}
}

type failWriter struct{ n int }

func (w *failWriter) Write(p []byte) (int, error) {
	w.n++
	return 0, errors.New("disk full")
}

func TestRelay_WriteFailureLatches(t *testing.T) {
	var buf bytes.Buffer
	r := NewRelay(transport.KindRFS, &buf, util.NopLogger())
	r.Dispatch(&transport.Envelope{Command: 1, Seq: 1})
	if !strings.HasPrefix(buf.String(), "rfs cmd=0x0001") {
		t.Errorf("relay output = %q", buf.String())
	}

	w := &failWriter{}
	r = NewRelay(transport.KindFMT, w, nil)
	r.Dispatch(&transport.Envelope{})
	r.Dispatch(&transport.Envelope{})
	if w.n != 1 {
		t.Errorf("writes after failure = %d, want 1", w.n)
	}
	r.Reset()
	r.Dispatch(&transport.Envelope{})
	if w.n != 2 {
		t.Errorf("Reset should re-enable writes, got %d", w.n)
	}
}

func TestExec_NoCommand(t *testing.T) {
	if _, err := (Exec{}).Start(context.Background(), nil); err == nil {
		t.Fatal("expected error without a command")
	}
	if (Exec{}).Enabled() {
		t.Error("empty Exec should not be enabled")
	}
}

func TestExec_FeedsLines(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses /bin/sh")
	}
	out := filepath.Join(t.TempDir(), "lines")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	p, err := Exec{Command: "cat > " + out}.Start(ctx, util.NopLogger())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	p.For(transport.KindFMT).Dispatch(&transport.Envelope{Command: 0x0102, Type: 1, Seq: 4, Data: []byte{1}})
	p.For(transport.KindRFS).Dispatch(&transport.Envelope{Command: 0x03, Seq: 5})

	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	want := "fmt cmd=0x0102 type=0x01 seq=4 len=1 data=01\nrfs cmd=0x0003 seq=5 len=0 data=\n"
	if string(data) != want {
		t.Errorf("handler saw %q, want %q", data, want)
	}
	select {
	case <-p.Done():
	default:
		t.Error("Done should be closed after Close")
	}
	if n := p.Dropped(); n != 0 {
		t.Errorf("Dropped = %d, want 0", n)
	}
}

// A handler that never reads its stdin must not stall the caller.
func TestExec_StalledHandlerDrops(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses /bin/sh")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p, err := Exec{Command: "exec sleep 30", QueueSize: 4}.Start(ctx, util.NopLogger())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Enough payload to fill the OS pipe buffer many times over.
	env := &transport.Envelope{Command: 0x0101, Data: make([]byte, 4096)}
	d := p.For(transport.KindFMT)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			d.Dispatch(env)
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Dispatch blocked behind a handler that does not read")
	}
	if p.Dropped() == 0 {
		t.Error("expected lines to be dropped")
	}

	cancel()
	p.Close() //nolint:errcheck
	select {
	case <-p.Done():
	default:
		t.Error("Done should be closed after Close")
	}
}

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestCollector_Prometheus(t *testing.T) {
	c := New()
	c.Channel("fmt").Received(8)
	c.Channel("fmt").Received(8)
	c.Channel("fmt").SetUp(true)
	c.Channel("rfs").Dropped()
	c.SessionOpened()

	reg := prometheus.NewRegistry()
	if err := reg.Register(c); err != nil {
		t.Fatalf("Register: %v", err)
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}

	values := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			key := mf.GetName()
			for _, lp := range m.GetLabel() {
				key += "/" + lp.GetValue()
			}
			switch {
			case m.GetCounter() != nil:
				values[key] = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				values[key] = m.GetGauge().GetValue()
			}
		}
	}

	tests := []struct {
		key  string
		want float64
	}{
		{"modemlink_channel_envelopes_received_total/fmt", 2},
		{"modemlink_channel_bytes_in_total/fmt", 16},
		{"modemlink_channel_up/fmt", 1},
		{"modemlink_channel_up/rfs", 0},
		{"modemlink_channel_sends_dropped_total/rfs", 1},
		{"modemlink_control_sessions_active", 1},
		{"modemlink_control_sessions_total", 1},
	}
	for _, tt := range tests {
		got, ok := values[tt.key]
		if !ok {
			t.Errorf("%s missing from gathered metrics", tt.key)
			continue
		}
		if got != tt.want {
			t.Errorf("%s = %v, want %v", tt.key, got, tt.want)
		}
	}
}

func TestCollector_Registry(t *testing.T) {
	reg := New().Registry()
	if _, err := reg.Gather(); err != nil {
		t.Fatalf("Gather: %v", err)
	}
}

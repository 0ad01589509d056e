package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "modemlink"

var (
	descReceived = prometheus.NewDesc(namespace+"_channel_envelopes_received_total",
		"Inbound envelopes dispatched.", []string{"channel"}, nil)
	descBytesIn = prometheus.NewDesc(namespace+"_channel_bytes_in_total",
		"Inbound payload bytes.", []string{"channel"}, nil)
	descSends = prometheus.NewDesc(namespace+"_channel_sends_total",
		"Outbound messages handed to the transport.", []string{"channel"}, nil)
	descBytesOut = prometheus.NewDesc(namespace+"_channel_bytes_out_total",
		"Outbound payload bytes.", []string{"channel"}, nil)
	descDropped = prometheus.NewDesc(namespace+"_channel_sends_dropped_total",
		"Sends discarded because the channel was not live.", []string{"channel"}, nil)
	descSendErrors = prometheus.NewDesc(namespace+"_channel_send_errors_total",
		"Sends rejected by the transport.", []string{"channel"}, nil)
	descCreateFailures = prometheus.NewDesc(namespace+"_channel_create_failures_total",
		"Failed channel bring-ups.", []string{"channel"}, nil)
	descLoopAborts = prometheus.NewDesc(namespace+"_channel_loop_aborts_total",
		"Read loops that exited on error.", []string{"channel"}, nil)
	descRestarts = prometheus.NewDesc(namespace+"_channel_restarts_total",
		"Supervisor restarts.", []string{"channel"}, nil)
	descUp = prometheus.NewDesc(namespace+"_channel_up",
		"Whether the channel handle is live.", []string{"channel"}, nil)

	descSessionsActive = prometheus.NewDesc(namespace+"_control_sessions_active",
		"Open control sessions.", nil, nil)
	descSessionsTotal = prometheus.NewDesc(namespace+"_control_sessions_total",
		"Control sessions accepted.", nil, nil)
	descTunnelReconnects = prometheus.NewDesc(namespace+"_tunnel_reconnects_total",
		"SSH tunnel reconnections.", nil, nil)
	descErrors = prometheus.NewDesc(namespace+"_errors_total",
		"Errors recorded by the daemon.", nil, nil)
	descUptime = prometheus.NewDesc(namespace+"_uptime_seconds",
		"Seconds since the collector was created.", nil, nil)
)

var _ prometheus.Collector = (*Collector)(nil)

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		descReceived, descBytesIn, descSends, descBytesOut, descDropped,
		descSendErrors, descCreateFailures, descLoopAborts, descRestarts, descUp,
		descSessionsActive, descSessionsTotal, descTunnelReconnects, descErrors, descUptime,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.  Values are read at scrape
// time, so the counters stay plain atomics on the hot path.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c == nil {
		return
	}
	counter := func(d *prometheus.Desc, v int64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}
	gauge := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, labels...)
	}

	for _, m := range c.channelList() {
		s := m.Snapshot()
		counter(descReceived, s.Received, m.name)
		counter(descBytesIn, s.BytesIn, m.name)
		counter(descSends, s.Sends, m.name)
		counter(descBytesOut, s.BytesOut, m.name)
		counter(descDropped, s.Dropped, m.name)
		counter(descSendErrors, s.SendErrors, m.name)
		counter(descCreateFailures, s.CreateFailures, m.name)
		counter(descLoopAborts, s.LoopAborts, m.name)
		counter(descRestarts, s.Restarts, m.name)
		up := 0.0
		if s.Up {
			up = 1
		}
		gauge(descUp, up, m.name)
	}

	gauge(descSessionsActive, float64(c.sessionsActive.Load()))
	counter(descSessionsTotal, c.sessionsTotal.Load())
	counter(descTunnelReconnects, c.tunnelReconnects.Load())
	counter(descErrors, c.errorsTotal.Load())

	c.mu.RLock()
	start := c.startTime
	c.mu.RUnlock()
	gauge(descUptime, time.Since(start).Seconds())
}

// Registry returns a fresh registry holding c plus the Go runtime and
// process collectors.
func (c *Collector) Registry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(c)
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

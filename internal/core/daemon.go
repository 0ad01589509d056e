package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"modemlink/internal/channel"
	"modemlink/internal/control"
	"modemlink/internal/dispatch"
	"modemlink/internal/metrics"
	"modemlink/internal/transport"
	"modemlink/util"
)

// Daemon runs every supervisor and listener of one modemlink process.
type Daemon struct {
	Supervisors []*Supervisor
	Control     *control.Server // nil when controlAddr is unset
	MetricsAddr string
	Metrics     *metrics.Collector
	Dialer      transport.Dialer
	Exec        dispatch.Exec
	GracePeriod time.Duration
	Logger      *util.Logger

	// routers holds each channel's dispatch table by channel name.
	// Unclaimed envelopes fall through to the relay or exec handler.
	routers map[string]*dispatch.Router
}

// Router returns the dispatch table of the named channel, or nil.
// Handlers registered before Run see envelopes from the first one on.
func (d *Daemon) Router(name string) *dispatch.Router { return d.routers[name] }

// Client returns the named channel, or nil when it is disabled.
func (d *Daemon) Client(name string) *channel.Client {
	for _, s := range d.Supervisors {
		if s.Client.Profile().Name == name {
			return s.Client
		}
	}
	return nil
}

// Run starts everything and blocks until ctx is cancelled or one part
// fails for good.  The dialer is closed on return.
func (d *Daemon) Run(ctx context.Context) error {
	logger := d.logger()
	if d.Dialer != nil {
		defer d.Dialer.Close()
	}

	g, gctx := errgroup.WithContext(ctx)

	if d.Exec.Enabled() {
		proc, err := d.Exec.Start(gctx, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := proc.Close(); err != nil && ctx.Err() == nil {
				logger.Debug("exec handler: %v", err)
			}
			if n := proc.Dropped(); n > 0 {
				logger.Warn("exec handler dropped %d lines", n)
			}
		}()
		for _, s := range d.Supervisors {
			p := s.Client.Profile()
			if r := d.routers[p.Name]; r != nil {
				r.SetFallback(proc.For(p.Kind).Dispatch)
			}
		}
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return nil
			case <-proc.Done():
				return fmt.Errorf("exec handler exited: %v", proc.Err())
			}
		})
	}

	for _, s := range d.Supervisors {
		s := s
		g.Go(func() error { return s.Run(gctx) })
	}
	if d.Control != nil {
		g.Go(func() error { return d.Control.Run(gctx) })
	}
	if d.MetricsAddr != "" {
		g.Go(func() error { return d.serveMetrics(gctx) })
	}

	logger.Info("modemlink running with %d channel(s)", len(d.Supervisors))
	err := g.Wait()
	logger.Verbose("modemlink stopped")
	return err
}

func (d *Daemon) logger() *util.Logger {
	if d.Logger == nil {
		return util.NopLogger()
	}
	return d.Logger
}

// ── HTTP surface ─────────────────────────────────────────────────────

// Handler serves /metrics (Prometheus), /stats (JSON snapshot) and
// /healthz (200 when every channel is live, 503 otherwise).
func (d *Daemon) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(d.Metrics.Registry(), promhttp.HandlerOpts{}))
	mux.HandleFunc("/stats", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(d.Metrics.Snapshot()) //nolint:errcheck
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		healthy := true
		for _, s := range d.Supervisors {
			if !s.Client.Live() {
				healthy = false
			}
		}
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		for _, s := range d.Supervisors {
			fmt.Fprintf(w, "%s %s\n", s.Client.Profile().Name, s.Client.State())
		}
	})
	return mux
}

func (d *Daemon) serveMetrics(ctx context.Context) error {
	ln, err := net.Listen("tcp", d.MetricsAddr)
	if err != nil {
		return fmt.Errorf("metrics: listen on %s: %w", d.MetricsAddr, err)
	}
	srv := &http.Server{Handler: d.Handler(), ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		grace := d.GracePeriod
		if grace <= 0 {
			grace = 5 * time.Second
		}
		sctx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()
		srv.Shutdown(sctx) //nolint:errcheck
	}()

	d.logger().Verbose("metrics listening on %s", ln.Addr())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics: %w", err)
	}
	return nil
}

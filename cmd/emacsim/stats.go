package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/knieriem/tinygo-emac/emac"
)

const namespace = "emac"

// statsCollector exports the driver counters and the link state.
type statsCollector struct {
	d *emac.Driver

	counters []counterDesc
	linkUp   *prometheus.Desc
}

type counterDesc struct {
	desc  *prometheus.Desc
	value func(s *emac.Stats) uint32
}

func newStatsCollector(d *emac.Driver) *statsCollector {
	counter := func(name, help string, value func(s *emac.Stats) uint32) counterDesc {
		return counterDesc{
			desc:  prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, nil, nil),
			value: value,
		}
	}
	return &statsCollector{
		d: d,
		counters: []counterDesc{
			counter("tx_frames_total", "Frames handed to the transmit DMA", func(s *emac.Stats) uint32 { return s.TxFrames }),
			counter("tx_errors_total", "Frames completed with an error status", func(s *emac.Stats) uint32 { return s.TxErrors }),
			counter("rx_frames_total", "Frames received", func(s *emac.Stats) uint32 { return s.RxFrames }),
			counter("rx_errors_total", "Received frames discarded because of an error status", func(s *emac.Stats) uint32 { return s.RxErrors }),
			counter("rx_dropped_total", "Received frames discarded because the buffer was too small", func(s *emac.Stats) uint32 { return s.RxDropped }),
			counter("rx_desync_total", "Receive ring resynchronizations", func(s *emac.Stats) uint32 { return s.RxDesync }),
		},
		linkUp: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "link_up"),
			"Whether the PHY reports a link", []string{"speed", "duplex"}, nil),
	}
}

func (c *statsCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, cd := range c.counters {
		ch <- cd.desc
	}
	ch <- c.linkUp
}

func (c *statsCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.d.Stats()
	for _, cd := range c.counters {
		ch <- prometheus.MustNewConstMetric(cd.desc, prometheus.CounterValue, float64(cd.value(&s)))
	}
	l := c.d.Link()
	up := 0.0
	if l.Up {
		up = 1
	}
	ch <- prometheus.MustNewConstMetric(c.linkUp, prometheus.GaugeValue, up, l.Speed.String(), l.Duplex.String())
}

// newStatsRegistry returns a registry holding the driver collector and
// a static info gauge.
func newStatsRegistry(d *emac.Driver) *prometheus.Registry {
	pr := prometheus.NewRegistry()
	pr.MustRegister(newStatsCollector(d))

	g := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "info",
		Help:      "Version information for the simulator binary",
		ConstLabels: prometheus.Labels{
			"version":   Build,
			"goversion": runtime.Version(),
		},
	})
	pr.MustRegister(g)
	g.Set(1)
	return pr
}

// startStats serves the registry over HTTP until ctx is done. It returns
// once the listener is bound.
func startStats(ctx context.Context, l *slog.Logger, c *Config, d *emac.Driver) error {
	ln, err := net.Listen("tcp", c.Stats.Listen)
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle(c.Stats.Path, promhttp.HandlerFor(newStatsRegistry(d), promhttp.HandlerOpts{
		ErrorLog: slog.NewLogLogger(l.Handler(), slog.LevelError),
	}))
	srv := &http.Server{Handler: mux}

	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	go func() {
		l.Info("Prometheus stats listening", "addr", ln.Addr().String(), "path", c.Stats.Path)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error("stats server", "err", err)
		}
	}()
	return nil
}
